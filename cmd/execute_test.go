package cmd

import (
	"os"
	"strings"
	"testing"
)

func TestExecuteVersion(t *testing.T) {
	old := os.Args
	defer func() { os.Args = old }()

	for _, arg := range []string{"version", "--version", "-v"} {
		os.Args = []string{"ragserver", arg}
		if err := Execute(); err != nil {
			t.Errorf("Execute(%s): %v", arg, err)
		}
	}
}

func TestExecuteHelp(t *testing.T) {
	old := os.Args
	defer func() { os.Args = old }()

	os.Args = []string{"ragserver", "help"}
	if err := Execute(); err != nil {
		t.Errorf("Execute(help): %v", err)
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	old := os.Args
	defer func() { os.Args = old }()

	os.Args = []string{"ragserver", "frobnicate"}
	err := Execute()
	if err == nil {
		t.Fatal("unknown command accepted")
	}
	if !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("error %q does not name the command", err)
	}
}
