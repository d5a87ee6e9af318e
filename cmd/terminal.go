package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/term"
)

// canInitializeTUI tests if tcell can actually be initialized
func canInitializeTUI() bool {
	screen, err := tcell.NewScreen()
	if err != nil {
		return false
	}
	if err := screen.Init(); err != nil {
		return false
	}
	screen.Fini()
	return true
}

// getTerminalSize returns the stdout terminal size, preferring COLUMNS/LINES.
func getTerminalSize() (int, int) {
	if c, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil {
		if r, err := strconv.Atoi(os.Getenv("LINES")); err == nil {
			return c, r
		}
	}
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0, 0
	}
	return w, h
}

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// supportsColors checks if terminal supports colors
func supportsColors() bool {
	if os.Getenv("COLORTERM") != "" {
		return true
	}
	t := strings.ToLower(os.Getenv("TERM"))
	for _, hint := range []string{"color", "256", "truecolor", "24bit", "xterm", "screen", "tmux", "linux", "ansi"} {
		if strings.Contains(t, hint) {
			return true
		}
	}
	return false
}

// getTerminalInfo returns detailed terminal information
func getTerminalInfo() string {
	var info []string

	if t := os.Getenv("TERM"); t == "" {
		info = append(info, "TERM=<not set>")
	} else {
		info = append(info, fmt.Sprintf("TERM=%s", t))
	}
	if p := os.Getenv("TERM_PROGRAM"); p != "" {
		info = append(info, fmt.Sprintf("TERM_PROGRAM=%s", p))
	}
	if w, h := getTerminalSize(); w > 0 && h > 0 {
		info = append(info, fmt.Sprintf("Size=%dx%d", w, h))
	}
	info = append(info, fmt.Sprintf("TTY=%s", yesNo(isTerminal())))
	info = append(info, fmt.Sprintf("Colors=%s", yesNo(supportsColors())))
	return strings.Join(info, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// needsPseudoTTY checks if we need to use script command for pseudo-TTY
func needsPseudoTTY() bool {
	if runtime.GOOS == "windows" {
		return false
	}
	if file, err := os.OpenFile("/dev/tty", os.O_RDWR, 0); err == nil {
		file.Close()
		return false
	}
	_, err := exec.LookPath("script")
	return err == nil
}

// runWithPseudoTTY re-executes the current command line under script(1) so
// tcell gets a terminal.
func runWithPseudoTTY() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	cmdArgs := append([]string{}, os.Args[1:]...)
	hasForce := false
	for _, a := range cmdArgs {
		if a == "--force-tui" {
			hasForce = true
		}
	}
	if !hasForce {
		cmdArgs = append(cmdArgs, "--force-tui")
	}

	quoted := make([]string, 0, len(cmdArgs)+1)
	quoted = append(quoted, strconv.Quote(executable))
	for _, a := range cmdArgs {
		quoted = append(quoted, strconv.Quote(a))
	}
	fullCmd := fmt.Sprintf("TERM=%s %s", os.Getenv("TERM"), strings.Join(quoted, " "))

	scriptCmd := exec.Command("script", "-qec", fullCmd, "/dev/null")
	scriptCmd.Stdin = os.Stdin
	scriptCmd.Stdout = os.Stdout
	scriptCmd.Stderr = os.Stderr
	scriptCmd.Env = os.Environ()
	return scriptCmd.Run()
}

// determineTUIMode reports whether serve will draw the dashboard.
func determineTUIMode() bool {
	if noTUI {
		return false
	}
	if forceTUI || canInitializeTUI() {
		return true
	}
	return needsPseudoTTY()
}

// getWorkingDir returns the current working directory.
// Falls back to the executable directory if os.Getwd fails.
func getWorkingDir() string {
	if wd, err := os.Getwd(); err == nil && wd != "" {
		return wd
	}
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// resolvePathRelativeToBase resolves a possibly relative path against a base directory.
// Absolute paths are returned unchanged.
func resolvePathRelativeToBase(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, strings.TrimPrefix(p, "./"))
}

// tuiLogPath returns logs/<name> under the working directory, creating the directory.
func tuiLogPath(name string) (string, error) {
	logDir := filepath.Join(getWorkingDir(), "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}
	return filepath.Join(logDir, name), nil
}
