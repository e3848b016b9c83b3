package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeTestWAV encodes samples as a 16-bit PCM WAV file.
func writeTestWAV(t *testing.T, path string, sig Signal, channels int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating wav file: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sig.SampleRate, 16, channels, 1)
	data := make([]int, 0, len(sig.Samples)*channels)
	for _, s := range sig.Samples {
		v := int(math.Round(s * 32767))
		for c := 0; c < channels; c++ {
			data = append(data, v)
		}
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sig.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encoding wav data: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing encoder: %v", err)
	}
}

func TestReadWAVRoundTrip(t *testing.T) {
	sig := Tone(440, 0.5, 11025, 0.5)
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeTestWAV(t, path, sig, 1)

	got, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}

	if got.SampleRate != sig.SampleRate {
		t.Errorf("sample rate = %d, want %d", got.SampleRate, sig.SampleRate)
	}
	if len(got.Samples) != len(sig.Samples) {
		t.Fatalf("sample count = %d, want %d", len(got.Samples), len(sig.Samples))
	}

	// Quantization to 16 bits loses at most one step.
	for i := range got.Samples {
		if math.Abs(got.Samples[i]-sig.Samples[i]) > 1.0/32767+1e-9 {
			t.Fatalf("sample %d = %f, want %f", i, got.Samples[i], sig.Samples[i])
		}
	}
}

func TestReadWAVStereoDownmix(t *testing.T) {
	sig := Tone(440, 0.25, 11025, 0.5)
	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeTestWAV(t, path, sig, 2)

	got, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if len(got.Samples) != len(sig.Samples) {
		t.Fatalf("downmixed sample count = %d, want %d", len(got.Samples), len(sig.Samples))
	}
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadWAV(path); err == nil {
		t.Fatal("expected error for non-WAV data")
	}
}

func TestResample(t *testing.T) {
	sig := Tone(440, 1.0, 44100, 0.5)

	got, err := Resample(sig, 11025)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if got.SampleRate != 11025 {
		t.Errorf("sample rate = %d, want 11025", got.SampleRate)
	}
	want := len(sig.Samples) / 4
	if len(got.Samples) < want || len(got.Samples) > want+1 {
		t.Errorf("sample count = %d, want ~%d", len(got.Samples), want)
	}
}

func TestResampleFractionalRatio(t *testing.T) {
	// 48000/11025 is not an integer; the output rate must still be the
	// exact target, not a truncated 12000Hz mislabeled as 11025
	sig := Tone(1000, 1.0, 48000, 0.8)

	got, err := Prepare(sig, 11025)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if got.SampleRate != 11025 {
		t.Errorf("sample rate = %d, want 11025", got.SampleRate)
	}
	if d := got.Duration(); math.Abs(d-1.0) > 0.01 {
		t.Errorf("duration = %f, want 1.0", d)
	}
	want := 11025
	if len(got.Samples) < want-2 || len(got.Samples) > want+2 {
		t.Errorf("sample count = %d, want ~%d", len(got.Samples), want)
	}
}

func TestResampleRejectsUpsampling(t *testing.T) {
	sig := Tone(440, 0.1, 11025, 0.5)
	if _, err := Resample(sig, 44100); err == nil {
		t.Fatal("expected error for upsampling")
	}
}

func TestPrepareNoOpAtTargetRate(t *testing.T) {
	sig := Tone(440, 0.1, 11025, 0.5)
	got, err := Prepare(sig, 11025)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if &got.Samples[0] != &sig.Samples[0] {
		t.Error("expected pass-through at target rate")
	}
}

func TestToneSequenceDuration(t *testing.T) {
	sig := ToneSequence([]float64{440, 880, 1320}, 0.5, 11025, 0.5)
	if got, want := sig.Duration(), 1.5; math.Abs(got-want) > 0.01 {
		t.Errorf("duration = %f, want %f", got, want)
	}
}
