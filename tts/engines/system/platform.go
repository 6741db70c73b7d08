package system

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/dgnsrekt/voicebox/tts"
)

// speaker is a live utterance. Wait blocks until speech finishes; Stop kills
// it early.
type speaker interface {
	Wait() error
	Stop()
	Suspend() error
	Resume() error
}

// backend wraps one platform speech command. Speak returns once speech has
// actually begun.
type backend interface {
	name() string
	voices(ctx context.Context) ([]tts.Voice, error)
	speak(text, voiceURI string, rate float64) (speaker, error)
	pausable() bool
}

// detectBackend picks the platform's speech command, or fails when the host
// has no speech capability at all.
func detectBackend() (backend, error) {
	switch runtime.GOOS {
	case "darwin":
		if _, err := exec.LookPath("say"); err == nil {
			return sayBackend{}, nil
		}
	case "windows":
		if _, err := exec.LookPath("powershell"); err == nil {
			return powershellBackend{}, nil
		}
	default:
		for _, bin := range []string{"espeak-ng", "espeak"} {
			if _, err := exec.LookPath(bin); err == nil {
				return espeakBackend{bin: bin}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no speech command found", tts.ErrEngineUnavailable)
}

// procSpeaker is a speaker over a started subprocess.
type procSpeaker struct {
	cmd *exec.Cmd
}

func (p *procSpeaker) Wait() error { return p.cmd.Wait() }

func (p *procSpeaker) Stop() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func (p *procSpeaker) Suspend() error { return suspendProcess(p.cmd.Process) }
func (p *procSpeaker) Resume() error { return resumeProcess(p.cmd.Process) }

// sayBackend drives the macOS `say` command.
type sayBackend struct{}

func (sayBackend) name() string   { return "say" }
func (sayBackend) pausable() bool { return true }

func (sayBackend) voices(ctx context.Context) ([]tts.Voice, error) {
	out, err := exec.CommandContext(ctx, "say", "-v", "?").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}
	return parseSayVoices(string(out)), nil
}

func (sayBackend) speak(text, voiceURI string, rate float64) (speaker, error) {
	args := []string{}
	if voiceURI != "" {
		args = append(args, "-v", voiceURI)
	}
	if rate > 0 {
		// say's default speaking rate is roughly 175 words per minute.
		args = append(args, "-r", strconv.Itoa(int(175*rate)))
	}
	cmd := exec.Command("say", args...)
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &procSpeaker{cmd: cmd}, nil
}

// parseSayVoices parses `say -v ?` output. Each line is
// "Name            lang_TAG    # sample sentence"; voice names may contain
// spaces, so the language is taken as the last field before the comment.
func parseSayVoices(out string) []tts.Voice {
	var voices []tts.Voice
	for _, line := range strings.Split(out, "\n") {
		left, _, _ := strings.Cut(line, "#")
		fields := strings.Fields(left)
		if len(fields) < 2 {
			continue
		}
		lang := fields[len(fields)-1]
		name := strings.Join(fields[:len(fields)-1], " ")
		voices = append(voices, tts.Voice{Name: name, Lang: lang, URI: name})
	}
	return voices
}

// espeakBackend drives espeak-ng (or legacy espeak) on Linux.
type espeakBackend struct {
	bin string
}

func (b espeakBackend) name() string { return b.bin }
func (espeakBackend) pausable() bool { return true }

func (b espeakBackend) voices(ctx context.Context) ([]tts.Voice, error) {
	out, err := exec.CommandContext(ctx, b.bin, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}
	return parseEspeakVoices(string(out)), nil
}

func (b espeakBackend) speak(text, voiceURI string, rate float64) (speaker, error) {
	args := []string{"--stdin"}
	if voiceURI != "" {
		args = append(args, "-v", voiceURI)
	}
	if rate > 0 {
		args = append(args, "-s", strconv.Itoa(int(175*rate)))
	}
	cmd := exec.Command(b.bin, args...)
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &procSpeaker{cmd: cmd}, nil
}

// parseEspeakVoices parses `espeak-ng --voices` output:
// "Pty Language       Age/Gender VoiceName          File          Other Languages"
func parseEspeakVoices(out string) []tts.Voice {
	lines := strings.Split(out, "\n")
	var voices []tts.Voice
	for i, line := range lines {
		if i == 0 { // header
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		voices = append(voices, tts.Voice{Name: fields[3], Lang: fields[1], URI: fields[3]})
	}
	return voices
}

// powershellBackend drives System.Speech through powershell on Windows.
type powershellBackend struct{}

func (powershellBackend) name() string   { return "powershell" }
func (powershellBackend) pausable() bool { return false }

const psListVoices = `Add-Type -AssemblyName System.Speech; ` +
	`(New-Object System.Speech.Synthesis.SpeechSynthesizer).GetInstalledVoices() | ` +
	`ForEach-Object { $_.VoiceInfo.Name + '|' + $_.VoiceInfo.Culture }`

func (powershellBackend) voices(ctx context.Context) ([]tts.Voice, error) {
	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", psListVoices).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}
	var voices []tts.Voice
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		name, lang, ok := strings.Cut(strings.TrimSpace(line), "|")
		if !ok || name == "" {
			continue
		}
		voices = append(voices, tts.Voice{Name: name, Lang: lang, URI: name})
	}
	return voices, nil
}

func (powershellBackend) speak(text, voiceURI string, rate float64) (speaker, error) {
	script := "Add-Type -AssemblyName System.Speech; " +
		"$sp = New-Object System.Speech.Synthesis.SpeechSynthesizer; "
	if voiceURI != "" {
		script += fmt.Sprintf("$sp.SelectVoice('%s'); ", strings.ReplaceAll(voiceURI, "'", "''"))
	}
	if rate > 0 {
		// System.Speech rates run -10..10 around the default.
		r := int((rate - 1) * 10)
		if r < -10 {
			r = -10
		}
		if r > 10 {
			r = 10
		}
		script += fmt.Sprintf("$sp.Rate = %d; ", r)
	}
	script += "$sp.Speak([Console]::In.ReadToEnd())"
	cmd := exec.Command("powershell", "-NoProfile", "-Command", script)
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &procSpeaker{cmd: cmd}, nil
}
