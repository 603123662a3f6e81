package dgt

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"github.com/park285/dgtviewer/internal/acquire"
)

const (
	DefaultBaudRate = 9600
	readTimeout     = 250 * time.Millisecond
)

// SerialEnumerator lists serial ports with their USB ids.
type SerialEnumerator struct{}

func (SerialEnumerator) List(ctx context.Context) ([]acquire.PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	out := make([]acquire.PortInfo, 0, len(ports))
	for _, p := range ports {
		info := acquire.PortInfo{Path: p.Name}
		if p.IsUSB {
			info.VendorID = p.VID
			info.ProductID = p.PID
			info.SerialNumber = p.SerialNumber
		}
		out = append(out, info)
	}
	return out, nil
}

// SerialOpener opens DGT boards on serial ports, 8N1.
type SerialOpener struct {
	BaudRate int
	Options  Options
	Logger   *zap.Logger
}

func (o SerialOpener) Open(ctx context.Context, path string) (acquire.Device, error) {
	baud := o.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	_ = port.ResetInputBuffer()

	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewBoard(port, o.Options, logger.With(zap.String("path", path))), nil
}
