package vulkan

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
)

func TestEnableDebuggingLogsToLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var app App
	app.enableDebugging(logger, func() ([]string, error) { return []string{"VK_LAYER_other"}, nil })
	if !strings.Contains(buf.String(), "validation disabled") {
		t.Errorf("log = %q, want a validation warning", buf.String())
	}
	if app.debugging() || len(app.EnabledLayers) != 0 {
		t.Errorf("layers %v, extensions %v enabled without the layer", app.EnabledLayers, app.EnabledExtensions)
	}

	buf.Reset()
	app.enableDebugging(logger, func() ([]string, error) { return nil, errors.New("no loader") })
	if !strings.Contains(buf.String(), "no loader") {
		t.Errorf("log = %q, want the loader error", buf.String())
	}
}

func TestEnableDebugging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var app App
	app.enableDebugging(logger, func() ([]string, error) {
		return []string{"VK_LAYER_other", "VK_LAYER_KHRONOS_validation"}, nil
	})
	if buf.Len() != 0 {
		t.Errorf("log = %q, want nothing", buf.String())
	}
	if !slices.Contains(app.EnabledLayers, "VK_LAYER_KHRONOS_validation") || !app.debugging() {
		t.Errorf("layers %v, extensions %v", app.EnabledLayers, app.EnabledExtensions)
	}
}
