// midi_tool is an interactive command-line editor for standard MIDI files.
// It loads a .mid file, applies pitch, velocity, chorus, or delay effects to
// one or all tracks, and saves the result to a timestamped output file. With
// a SoundFont it can also render the edited file to a WAV for previewing.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/moliveira/midiedit"
	"github.com/moliveira/midiedit/effects"
)

// Holds the state of one interactive editing session: the loaded file, the
// stdin reader, and the optional SoundFont used for WAV previews.
type editorSession struct {
	input         *bufio.Reader
	file          *midiedit.File
	soundFontPath string
}

func newEditorSession(soundFontPath string) *editorSession {
	return &editorSession{
		input:         bufio.NewReader(os.Stdin),
		soundFontPath: soundFontPath,
	}
}

func initLogger(level string) error {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}

// Prints the given prompt and reads one trimmed line from stdin. Returns
// false if stdin was closed.
func (s *editorSession) prompt(text string) (string, bool) {
	fmt.Print(text)
	line, e := s.input.ReadString('\n')
	if (e != nil) && (line == "") {
		return "", false
	}
	return strings.TrimSpace(line), true
}

// Parses a comma-separated list of ints, e.g. "4,7".
func parseIntList(text string) ([]int, error) {
	parts := strings.Split(text, ",")
	toReturn := make([]int, 0, len(parts))
	for _, part := range parts {
		n, e := strconv.Atoi(strings.TrimSpace(part))
		if e != nil {
			return nil, fmt.Errorf("%q is not an integer",
				strings.TrimSpace(part))
		}
		toReturn = append(toReturn, n)
	}
	return toReturn, nil
}

// Opens and parses the MIDI file at the given path. The file handle is
// closed before returning, whether or not the parse succeeded.
func loadMIDIFile(path string) (*midiedit.File, error) {
	f, e := os.Open(path)
	if e != nil {
		return nil, e
	}
	defer f.Close()
	return midiedit.ParseSMFFile(f)
}

func (s *editorSession) saveFile() {
	outputName := fmt.Sprintf("output-%d.mid", time.Now().Unix())
	f, e := os.Create(outputName)
	if e != nil {
		slog.Error("Failed creating output file", "path", outputName,
			"error", e)
		return
	}
	defer f.Close()
	e = s.file.WriteToFile(f)
	if e != nil {
		slog.Error("Failed writing output file", "path", outputName,
			"error", e)
		return
	}
	fmt.Printf("File saved to %s.\n", outputName)
}

func (s *editorSession) renderFile() {
	if s.soundFontPath == "" {
		fmt.Println("Rendering requires a SoundFont; rerun with the " +
			"-soundfont flag.")
		return
	}
	outputName := fmt.Sprintf("output-%d.wav", time.Now().Unix())
	start := time.Now()
	e := renderWAV(s.file, s.soundFontPath, outputName)
	if e != nil {
		slog.Error("Failed rendering WAV preview", "error", e)
		return
	}
	slog.Debug("Rendered WAV preview", "path", outputName,
		"elapsed", time.Since(start))
	fmt.Printf("Rendered to %s.\n", outputName)
}

func (s *editorSession) pitchMenu(tracks []*midiedit.Track) {
	for {
		fmt.Println("Enter a signed integer denoting the change in pitch " +
			"in half steps.\n" +
			"Positive ints raise the pitch, negative ones lower it.\n" +
			"Remember, a multiple of 12 will raise/lower by octaves.\n\n" +
			"Enter \"b\" to select a different effect.")
		line, ok := s.prompt(">")
		if !ok || (line == "b") {
			return
		}
		amount, e := strconv.Atoi(line)
		if e != nil {
			fmt.Println("That is not a valid option.")
			continue
		}
		effects.Transpose(tracks, amount)
		fmt.Println("Pitch shift applied.")
		return
	}
}

func (s *editorSession) velocityMenu(tracks []*midiedit.Track) {
	for {
		fmt.Println("Enter an integer denoting the velocity.\n" +
			"This value should be between 1 and 127.\n\n" +
			"Enter \"b\" to select a different effect.")
		line, ok := s.prompt(">")
		if !ok || (line == "b") {
			return
		}
		amount, e := strconv.Atoi(line)
		if (e != nil) || (amount < 0) || (amount > 255) {
			fmt.Println("That is not a valid option.")
			continue
		}
		if e := effects.SetVelocity(tracks, uint8(amount)); e != nil {
			fmt.Println("The velocity value must be between 1 and 127.")
			continue
		}
		fmt.Println("Velocity applied.")
		return
	}
}

func (s *editorSession) chorusMenu(tracks []*midiedit.Track) {
	for {
		fmt.Println("Enter a series of signed integers separated by commas " +
			"denoting the relative pitches in half steps to add.\n" +
			"Positive ints add a note of higher pitch, negative ones add a " +
			"note of lower pitch.\n" +
			"Example: 4,7 for a major triad.\n\n" +
			"Enter \"b\" to select a different effect.")
		line, ok := s.prompt(">")
		if !ok || (line == "b") {
			return
		}
		intervals, e := parseIntList(line)
		if e != nil {
			fmt.Println("That is not a valid option.")
			continue
		}
		effects.Chorus(tracks, intervals)
		fmt.Println("Chorus added.")
		return
	}
}

func (s *editorSession) delayMenu(tracks []*midiedit.Track) {
	for {
		fmt.Println("Enter a series of integers separated by commas " +
			"denoting the number of 16th notes to delay by.\n" +
			"Example: 1,2.\n\n" +
			"Enter \"b\" to select a different effect.")
		line, ok := s.prompt(">")
		if !ok || (line == "b") {
			return
		}
		sixteenths, e := parseIntList(line)
		if e != nil {
			fmt.Println("That is not a valid option.")
			continue
		}
		e = effects.Delay(tracks, s.file.Division.TicksPerQuarterNote(),
			sixteenths)
		if e != nil {
			fmt.Println("That is not a valid option.")
			continue
		}
		fmt.Println("Delay added.")
		return
	}
}

// The effect-selection menu for a chosen track (or all tracks).
func (s *editorSession) effectMenu(tracks []*midiedit.Track, label string) {
	for {
		fmt.Printf("Select an effect to apply to %s.\n"+
			"1: Modify pitch.\n"+
			"2: Modify velocity.\n"+
			"3: Add choruses.\n"+
			"4: Add delays.\n"+
			"b: Go back, and select a different track.\n"+
			"s: Save your changes to a new file\n"+
			"r: Render your changes to a WAV file\n\n", label)
		option, ok := s.prompt(">")
		if !ok {
			return
		}
		switch option {
		case "1":
			s.pitchMenu(tracks)
		case "2":
			s.velocityMenu(tracks)
		case "3":
			s.chorusMenu(tracks)
		case "4":
			s.delayMenu(tracks)
		case "b":
			return
		case "s":
			s.saveFile()
		case "r":
			s.renderFile()
		case "p":
			fmt.Println(s.file)
		default:
			fmt.Println("That is not a valid option.")
		}
	}
}

// The track-selection menu for a loaded file. Returns when the user goes
// back to pick a different file.
func (s *editorSession) trackMenu() {
	for {
		fmt.Println("What track do you want to modify?")
		for i := range s.file.Tracks {
			fmt.Printf("%d: Track %d (%d events)\n", i+1, i+1,
				len(s.file.Tracks[i].Events))
		}
		if len(s.file.Tracks) != 1 {
			fmt.Println("a: All tracks")
		}
		fmt.Println("b: Go back, and select a different file")
		fmt.Println("s: Save your changes to a new file")
		fmt.Println()
		choice, ok := s.prompt(">")
		if !ok {
			return
		}
		switch choice {
		case "a":
			s.effectMenu(s.file.Tracks, "all tracks")
		case "b":
			return
		case "s":
			s.saveFile()
		default:
			n, e := strconv.Atoi(choice)
			if (e != nil) || (n < 1) || (n > len(s.file.Tracks)) {
				fmt.Println("That is not a valid option.")
				continue
			}
			s.effectMenu([]*midiedit.Track{s.file.Tracks[n-1]},
				fmt.Sprintf("track %d", n))
		}
	}
}

func (s *editorSession) run() {
	fmt.Println("----=MIDI editor=----")
	for {
		path, ok := s.prompt("Enter a filepath to a MIDI file: ")
		if !ok {
			return
		}
		if !strings.HasSuffix(path, ".mid") {
			fmt.Println("Your filepath must point to a valid MIDI file. " +
				"These files have the extension .mid.")
			continue
		}
		file, e := loadMIDIFile(path)
		if e != nil {
			if os.IsNotExist(e) {
				fmt.Println("Your filepath must point to a valid MIDI " +
					"file. No file was found at that path.")
			} else {
				slog.Debug("Parse failure", "path", path, "error", e)
				fmt.Printf("That MIDI file is not supported. %s\n", e)
			}
			continue
		}
		slog.Debug("Loaded MIDI file", "path", path,
			"tracks", len(file.Tracks), "division", file.Division.String())
		s.file = file
		s.trackMenu()
	}
}

func main() {
	logLevel := flag.String("log-level", "info",
		"Log level (debug, info, warn, error)")
	soundFontPath := flag.String("soundfont", "",
		"Path to a SoundFont (.sf2) file, enabling WAV preview rendering")
	flag.Parse()
	if e := initLogger(*logLevel); e != nil {
		fmt.Printf("Error: %s\n", e)
		os.Exit(1)
	}
	session := newEditorSession(*soundFontPath)
	session.run()
}
