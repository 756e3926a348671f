package codec

import "github.com/zaf/g711"

// ulaw is ITU-T G.711 µ-law, one byte per sample.
type ulaw struct{}

func (ulaw) Name() string { return ULaw }

func (ulaw) Encode(pcm []byte) ([]byte, error) {
	if err := checkPCM(pcm); err != nil {
		return nil, err
	}
	return g711.EncodeUlaw(pcm), nil
}

func (ulaw) Decode(data []byte) ([]byte, error) {
	return g711.DecodeUlaw(data), nil
}

// alaw is ITU-T G.711 A-law, one byte per sample.
type alaw struct{}

func (alaw) Name() string { return ALaw }

func (alaw) Encode(pcm []byte) ([]byte, error) {
	if err := checkPCM(pcm); err != nil {
		return nil, err
	}
	return g711.EncodeAlaw(pcm), nil
}

func (alaw) Decode(data []byte) ([]byte, error) {
	return g711.DecodeAlaw(data), nil
}
