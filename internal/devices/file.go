package devices

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ShayCichocki/hydra/internal/logging"
	"github.com/ShayCichocki/hydra/pkg/models"
)

// ErrNoSender is returned when the device file has no sender entry.
var ErrNoSender = errors.New("device file has no sender entry")

// senderRoles name the publisher endpoint rather than a worker.
var senderRoles = map[string]bool{"sender": true, "orchestrator": true}

// LoadOptions controls how a device file is interpreted.
type LoadOptions struct {
	// DefaultClass is given to workers without a class. When empty such
	// entries are skipped.
	DefaultClass models.CapabilityClass
	Logger       *slog.Logger
}

// Inventory is the parsed content of a device file.
type Inventory struct {
	// Pool holds every worker with a class, in file order.
	Pool *Pool
	// Sender is the publisher endpoint, or nil.
	Sender *models.Device
	// Entries lists every entry in file order, including the sender and
	// workers without a class.
	Entries []models.Device
	// Skipped names the workers left out of the pool.
	Skipped []string
}

// SenderDevice returns the sender entry or ErrNoSender.
func (inv *Inventory) SenderDevice() (models.Device, error) {
	if inv.Sender == nil {
		return models.Device{}, ErrNoSender
	}
	return *inv.Sender, nil
}

// Lookup finds an entry by role name.
func (inv *Inventory) Lookup(role string) (models.Device, error) {
	for _, d := range inv.Entries {
		if d.ID == role {
			return d, nil
		}
	}
	return models.Device{}, fmt.Errorf("%w: %s", ErrUnknownDevice, role)
}

// LoadFile reads a device file from disk.
func LoadFile(path string, opts LoadOptions) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open device file: %w", err)
	}
	defer f.Close()

	inv, err := Parse(f, opts)
	if err != nil {
		return nil, fmt.Errorf("device file %s: %w", path, err)
	}
	return inv, nil
}

// Parse reads a device document of the form
//
//	{"devices": {"<role>": {"ip": ..., "port": ..., "handshake_port": ..., "class": ...}}}
//
// The "devices" value may also be an array of entries carrying an "id" field.
// Entry order in the document is registration order.
func Parse(r io.Reader, opts LoadOptions) (*Inventory, error) {
	logger := logging.Component(opts.Logger, "devices")

	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var entries []fileEntry
	found := false
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		if key != "devices" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("decode %q: %w", key, err)
			}
			continue
		}
		found = true
		if entries, err = decodeEntries(dec); err != nil {
			return nil, err
		}
	}
	if !found {
		return nil, fmt.Errorf(`missing "devices" section`)
	}

	inv := &Inventory{Pool: NewPool()}
	for _, e := range entries {
		dev, err := e.device()
		if err != nil {
			return nil, err
		}
		inv.Entries = append(inv.Entries, dev)

		if senderRoles[strings.ToLower(dev.ID)] {
			if inv.Sender == nil {
				sender := dev
				inv.Sender = &sender
			}
			continue
		}

		if dev.Class == "" {
			if opts.DefaultClass == "" {
				logger.Warn("device has no class; skipping", "device", dev.ID)
				inv.Skipped = append(inv.Skipped, dev.ID)
				continue
			}
			dev.Class = opts.DefaultClass
		}
		if err := inv.Pool.Register(dev); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

type fileEntry struct {
	ID            string `json:"id"`
	IP            string `json:"ip"`
	Port          port   `json:"port"`
	HandshakePort port   `json:"handshake_port"`
	Class         string `json:"class"`
}

func (e fileEntry) device() (models.Device, error) {
	if e.ID == "" {
		return models.Device{}, fmt.Errorf("device entry has no id")
	}
	if strings.TrimSpace(e.IP) == "" {
		return models.Device{}, fmt.Errorf("device %s: missing ip", e.ID)
	}

	dev := models.Device{
		ID:            e.ID,
		Address:       strings.TrimSpace(e.IP),
		Port:          int(e.Port),
		HandshakePort: int(e.HandshakePort),
		Status:        models.DeviceOpen,
	}
	if e.Class != "" {
		class, ok := models.ParseCapabilityClass(e.Class)
		if !ok {
			return models.Device{}, fmt.Errorf("device %s: invalid class %q", e.ID, e.Class)
		}
		dev.Class = class
	}
	return dev, nil
}

// port accepts a JSON number or a numeric string.
type port int

func (p *port) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %s", data)
	}
	*p = port(n)
	return nil
}

func decodeEntries(dec *json.Decoder) ([]fileEntry, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read devices: %w", err)
	}

	var entries []fileEntry
	switch tok {
	case json.Delim('{'):
		for dec.More() {
			role, err := readKey(dec)
			if err != nil {
				return nil, err
			}
			var e fileEntry
			if err := dec.Decode(&e); err != nil {
				return nil, fmt.Errorf("device %s: %w", role, err)
			}
			if e.ID == "" {
				e.ID = role
			}
			entries = append(entries, e)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
	case json.Delim('['):
		for dec.More() {
			var e fileEntry
			if err := dec.Decode(&e); err != nil {
				return nil, fmt.Errorf("device %d: %w", len(entries), err)
			}
			entries = append(entries, e)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf(`"devices" must be an object or array`)
	}
	return entries, nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read %q: %w", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
