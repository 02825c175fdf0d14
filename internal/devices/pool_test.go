package devices

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hydra/pkg/models"
)

func newTestPool(t *testing.T, n int, class models.CapabilityClass) *Pool {
	t.Helper()
	p := NewPool()
	for i := 0; i < n; i++ {
		require.NoError(t, p.Register(models.Device{
			ID:      fmt.Sprintf("%s-%d", class.Short(), i),
			Address: fmt.Sprintf("10.0.0.%d", i+1),
			Port:    5001,
			Class:   class,
		}))
	}
	return p
}

func TestPool_NextOpen(t *testing.T) {
	p := newTestPool(t, 3, models.ClassRegular)

	d, ok := p.NextOpen(models.ClassRegular)
	require.True(t, ok)
	assert.Equal(t, "regular-0", d.ID)

	require.NoError(t, p.MarkClosed("regular-0"))
	d, ok = p.NextOpen(models.ClassRegular)
	require.True(t, ok)
	assert.Equal(t, "regular-1", d.ID)

	require.NoError(t, p.MarkClosed("regular-1"))
	require.NoError(t, p.MarkClosed("regular-2"))
	_, ok = p.NextOpen(models.ClassRegular)
	assert.False(t, ok, "no open device")

	_, ok = p.NextOpen(models.ClassThinking)
	assert.False(t, ok, "empty class")

	p.ReopenAll()
	d, ok = p.NextOpen(models.ClassRegular)
	require.True(t, ok)
	assert.Equal(t, "regular-0", d.ID)
}

func TestPool_Transitions(t *testing.T) {
	p := newTestPool(t, 1, models.ClassThinking)

	require.NoError(t, p.MarkOpen("thinking-0"), "opening an open device is a no-op")
	require.NoError(t, p.MarkClosed("thinking-0"))
	require.NoError(t, p.MarkClosed("thinking-0"), "closing a closed device is a no-op")

	d, _ := p.Get("thinking-0")
	assert.Equal(t, models.DeviceClosed, d.Status)

	err := p.MarkClosed("ghost")
	assert.True(t, errors.Is(err, ErrUnknownDevice))
}

func TestPool_NextOpenReturnsCopy(t *testing.T) {
	p := newTestPool(t, 1, models.ClassRegular)
	d, _ := p.NextOpen(models.ClassRegular)
	d.Status = models.DeviceClosed

	again, ok := p.NextOpen(models.ClassRegular)
	require.True(t, ok)
	assert.Equal(t, models.DeviceOpen, again.Status)
}

func TestPool_RegisterValidation(t *testing.T) {
	p := NewPool()
	assert.Error(t, p.Register(models.Device{Class: models.ClassRegular}))
	assert.Error(t, p.Register(models.Device{ID: "x", Class: "gpu"}))
	require.NoError(t, p.Register(models.Device{ID: "x", Class: models.ClassRegular}))
	assert.Error(t, p.Register(models.Device{ID: "x", Class: models.ClassThinking}), "duplicate id")
}

func TestPool_AssignRoundRobin(t *testing.T) {
	tests := []struct {
		devices, tasks int
	}{
		{1, 1},
		{1, 5},
		{2, 3},
		{3, 3},
		{3, 10},
		{4, 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d devices %d tasks", tt.devices, tt.tasks), func(t *testing.T) {
			p := newTestPool(t, tt.devices, models.ClassRegular)
			all := p.ForClass(models.ClassRegular)
			counts := make(map[string]int)

			for i := 0; i < tt.tasks; i++ {
				d, ok := p.Assign(models.ClassRegular, i)
				require.True(t, ok)
				assert.Equal(t, all[i%tt.devices].ID, d.ID)
				counts[d.ID]++
			}

			floor := tt.tasks / tt.devices
			ceil := floor
			if tt.tasks%tt.devices != 0 {
				ceil++
			}
			for _, d := range all {
				c := counts[d.ID]
				if c != floor && c != ceil {
					t.Errorf("device %s got %d tasks, want %d or %d", d.ID, c, floor, ceil)
				}
			}
		})
	}
}

func TestPool_AssignIgnoresStatus(t *testing.T) {
	p := newTestPool(t, 2, models.ClassRegular)
	require.NoError(t, p.MarkClosed("regular-0"))

	d, ok := p.Assign(models.ClassRegular, 0)
	require.True(t, ok)
	assert.Equal(t, "regular-0", d.ID)

	_, ok = p.Assign(models.ClassThinking, 0)
	assert.False(t, ok)
}

func TestParse_PreservesFileOrder(t *testing.T) {
	doc := `{
		"devices": {
			"sender":   {"ip": "10.0.0.1", "port": 5555},
			"zeta":     {"ip": "10.0.0.9", "port": 5001, "handshake_port": 5002, "class": "regular_model"},
			"alpha":    {"ip": "10.0.0.3", "port": "5001", "class": "regular"},
			"mind":     {"ip": "10.0.0.4", "port": 5001, "class": "thinking_model"},
			"receiver": {"ip": "10.13.15.58", "port": 5001, "handshake_port": 5002}
		},
		"version": 2
	}`

	inv, err := Parse(strings.NewReader(doc), LoadOptions{})
	require.NoError(t, err)

	regular := inv.Pool.ForClass(models.ClassRegular)
	require.Len(t, regular, 2)
	assert.Equal(t, "zeta", regular[0].ID)
	assert.Equal(t, "alpha", regular[1].ID)
	assert.Equal(t, 5002, regular[0].HandshakePort)
	assert.Equal(t, 5001, regular[1].Port)

	assert.Equal(t, 1, inv.Pool.Len(models.ClassThinking))
	assert.Equal(t, []string{"receiver"}, inv.Skipped)

	sender, err := inv.SenderDevice()
	require.NoError(t, err)
	assert.Equal(t, 5555, sender.Port)

	recv, err := inv.Lookup("receiver")
	require.NoError(t, err)
	assert.Equal(t, "10.13.15.58", recv.Address)
	assert.Len(t, inv.Entries, 5)
}

func TestParse_DefaultClass(t *testing.T) {
	doc := `{"devices": {"receiver": {"ip": "10.13.15.58", "port": 5001}}}`
	inv, err := Parse(strings.NewReader(doc), LoadOptions{DefaultClass: models.ClassRegular})
	require.NoError(t, err)

	assert.Equal(t, 1, inv.Pool.Len(models.ClassRegular))
	assert.Empty(t, inv.Skipped)
	_, err = inv.SenderDevice()
	assert.True(t, errors.Is(err, ErrNoSender))
}

func TestParse_ArrayForm(t *testing.T) {
	doc := `{"devices": [
		{"id": "b", "ip": "10.0.0.2", "port": 1, "class": "thinking_model"},
		{"id": "a", "ip": "10.0.0.1", "port": 2, "class": "thinking_model"}
	]}`
	inv, err := Parse(strings.NewReader(doc), LoadOptions{})
	require.NoError(t, err)

	got := inv.Pool.ForClass(models.ClassThinking)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not an object", `[]`},
		{"missing devices", `{"hosts": {}}`},
		{"devices scalar", `{"devices": 3}`},
		{"missing ip", `{"devices": {"a": {"port": 1, "class": "regular_model"}}}`},
		{"bad class", `{"devices": {"a": {"ip": "x", "port": 1, "class": "gpu"}}}`},
		{"bad port", `{"devices": {"a": {"ip": "x", "port": "http"}}}`},
		{"array entry without id", `{"devices": [{"ip": "x", "port": 1}]}`},
		{"truncated", `{"devices": {"a": {"ip": "x"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc), LoadOptions{})
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ip.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"devices": {"w": {"ip": "127.0.0.1", "port": 6000, "class": "regular_model"}}}`), 0644))

	inv, err := LoadFile(path, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, inv.Pool.Len(models.ClassRegular))

	_, err = LoadFile(filepath.Join(t.TempDir(), "nope.json"), LoadOptions{})
	assert.Error(t, err)
}
