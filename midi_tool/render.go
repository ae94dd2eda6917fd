package main

// WAV preview rendering: the edited file is re-encoded to bytes and
// synthesized offline through a SoundFont, then written out as 16-bit stereo
// PCM.

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/moliveira/midiedit"
	"github.com/sinshu/go-meltysynth/meltysynth"
)

const renderSampleRate = 44100

// Restricts a rendered sample to the range [min, max] before int16
// conversion.
func clampSample(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Re-encodes the given file and synthesizes it to a WAV at outputPath using
// the SoundFont at soundFontPath.
func renderWAV(file *midiedit.File, soundFontPath, outputPath string) error {
	var midiData bytes.Buffer
	e := file.WriteToFile(&midiData)
	if e != nil {
		return fmt.Errorf("failed re-encoding MIDI file: %w", e)
	}
	sf2Data, e := os.ReadFile(soundFontPath)
	if e != nil {
		return fmt.Errorf("failed reading SoundFont file: %w", e)
	}
	soundFont, e := meltysynth.NewSoundFont(bytes.NewReader(sf2Data))
	if e != nil {
		return fmt.Errorf("failed parsing SoundFont: %w", e)
	}
	settings := meltysynth.NewSynthesizerSettings(renderSampleRate)
	synth, e := meltysynth.NewSynthesizer(soundFont, settings)
	if e != nil {
		return fmt.Errorf("failed creating synthesizer: %w", e)
	}
	midiFile, e := meltysynth.NewMidiFile(bytes.NewReader(midiData.Bytes()))
	if e != nil {
		return fmt.Errorf("failed loading re-encoded MIDI file: %w", e)
	}
	sequencer := meltysynth.NewMidiFileSequencer(synth)
	sequencer.Play(midiFile, false)
	sampleCount := int(midiFile.GetLength().Seconds() *
		float64(renderSampleRate))
	left := make([]float32, sampleCount)
	right := make([]float32, sampleCount)
	sequencer.Render(left, right)
	// Interleave into 16-bit stereo.
	samples := make([]int, sampleCount*2)
	for i := 0; i < sampleCount; i++ {
		samples[i*2] = int(clampSample(left[i], -1, 1) * 32767)
		samples[i*2+1] = int(clampSample(right[i], -1, 1) * 32767)
	}
	out, e := os.Create(outputPath)
	if e != nil {
		return fmt.Errorf("failed creating output file: %w", e)
	}
	defer out.Close()
	encoder := wav.NewEncoder(out, renderSampleRate, 16, 2, 1)
	buffer := &audio.IntBuffer{
		Data: samples,
		Format: &audio.Format{
			SampleRate:  renderSampleRate,
			NumChannels: 2,
		},
	}
	if e := encoder.Write(buffer); e != nil {
		return fmt.Errorf("failed writing WAV data: %w", e)
	}
	return encoder.Close()
}
