package screen

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultDevice  = "/dev/fb1"
	DefaultRefresh = 500 * time.Millisecond

	// The panel is 128x128, 16 bits per pixel.
	Size      = 128
	frameSize = Size * Size * 2

	// The SPI framebuffer driver drops data if it is written too fast.
	chunkSize  = 256
	chunkPause = 10 * time.Microsecond

	minCellVoltage = 3
	maxCellVoltage = 4.2
)

// Status is what the screen shows.
type Status struct {
	BatteryVolts float64
	Drive        string
	Lift         string
}

type Display struct {
	fb     io.WriteSeeker
	status func() Status
	clock  clock.Clock
	log    *zap.SugaredLogger
	buf    [frameSize]byte
}

func Open(device string, status func() Status, clk clock.Clock, log *zap.SugaredLogger) (*Display, error) {
	f, err := os.OpenFile(device, os.O_RDWR, 0666)
	if err != nil {
		return nil, errors.Wrap(err, "opening screen")
	}
	return New(f, status, clk, log), nil
}

func New(fb io.WriteSeeker, status func() Status, clk clock.Clock, log *zap.SugaredLogger) *Display {
	return &Display{
		fb:     fb,
		status: status,
		clock:  clk,
		log:    log,
	}
}

// Run redraws the screen every period until ctx is done, then blanks it.
func (d *Display) Run(ctx context.Context, period time.Duration) error {
	defer func() {
		if c, ok := d.fb.(io.Closer); ok {
			_ = c.Close()
		}
	}()
	ticker := d.clock.Ticker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.buf = [frameSize]byte{}
			if err := d.flush(); err != nil {
				d.log.Warnw("Failed to blank screen", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := d.Refresh(); err != nil {
				return err
			}
		}
	}
}

func (d *Display) Refresh() error {
	EncodeRGB565(Render(d.status()), d.buf[:])
	return d.flush()
}

func (d *Display) flush() error {
	if _, err := d.fb.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "screen failure")
	}
	for i := 0; i < frameSize; i += chunkSize {
		if _, err := d.fb.Write(d.buf[i : i+chunkSize]); err != nil {
			return errors.Wrap(err, "screen failure")
		}
		time.Sleep(chunkPause)
	}
	return nil
}

func Render(s Status) image.Image {
	dc := gg.NewContext(Size, Size)
	dc.SetRGBA(1, 0.9, 0, 1)

	dc.DrawString(fmt.Sprintf("DRIVE %s", s.Drive), 4, 14)
	dc.DrawString(fmt.Sprintf("LIFT %s", s.Lift), 4, 30)

	dc.Push()
	dc.Translate(84, 20)
	drawPowerBar(dc, s.BatteryVolts)
	dc.Pop()
	return dc.Image()
}

// ChargeFraction estimates the state of charge from the pack voltage.  Above 9V we must be on the
// 4-cell pack, otherwise the 2-cell one.
func ChargeFraction(voltage float64) float64 {
	cells := 2.0
	if voltage > 9 {
		cells = 4
	}
	charge := (voltage/cells - minCellVoltage) / (maxCellVoltage - minCellVoltage)
	switch {
	case charge < 0:
		return 0
	case charge > 1:
		return 1
	}
	return charge
}

func drawPowerBar(dc *gg.Context, voltage float64) {
	charge := ChargeFraction(voltage)
	if charge < 0.1 {
		dc.SetRGBA(1, 0.2, 0, 1)
	}
	dc.DrawRectangle(0, 70, 30, 10)
	for n := 2; n < 13; n++ {
		if charge >= float64(n)/13 {
			dc.DrawRectangle(2, 75-float64(n)*5, 26, 3)
		}
	}
	dc.Fill()
	dc.DrawString(fmt.Sprintf("%.1fv", voltage), -2, 93)
}

// EncodeRGB565 packs img into buf in the panel's layout: little-endian RGB565, column-major, with y
// running bottom to top.
func EncodeRGB565(img image.Image, buf []byte) {
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			r, g, b, _ := img.At(x, y).RGBA() // 16-bit pre-multiplied

			rb := byte(r >> (16 - 5))
			gb := byte(g >> (16 - 6)) // Green has 6 bits
			bb := byte(b >> (16 - 5))

			i := (Size-1-y)*2 + x*Size*2
			buf[i+1] = (rb << 3) | (gb >> 3)
			buf[i] = bb | (gb << 5)
		}
	}
}
