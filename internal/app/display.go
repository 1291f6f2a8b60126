package app

import (
	"fmt"
	"image"
	"log"
	"math"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/gps_imu_localization/internal/config"
	"github.com/relabs-tech/gps_imu_localization/internal/filter"
	"github.com/relabs-tech/gps_imu_localization/internal/localization"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
	// Pose older than this is shown as stale.
	staleAfter = 2 * time.Second
)

// poseCache holds the latest odometry for the update loop.
type poseCache struct {
	mu       sync.RWMutex
	odom     localization.Odometry
	received time.Time
}

func (c *poseCache) set(o localization.Odometry) {
	c.mu.Lock()
	c.odom = o
	c.received = time.Now()
	c.mu.Unlock()
}

func (c *poseCache) get() (localization.Odometry, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.odom, c.received
}

func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, cfg.DisplayI2CAddr, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := draw(dev, []string{"", "GPS + IMU", "Localization"}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	client, err := connectMQTT("display", cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	cache := &poseCache{}
	if err := subscribeJSON("display", client, cfg.TopicOdometry, cache.set); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for now := range ticker.C {
		odom, received := cache.get()
		if err := draw(dev, poseLines(odom, received, now)); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
	return nil
}

// poseLines formats the readout. received is when odom arrived; zero means
// nothing has arrived yet.
func poseLines(odom localization.Odometry, received, now time.Time) []string {
	if received.IsZero() {
		return []string{"", "Localization", "Waiting..."}
	}

	lines := []string{
		fmt.Sprintf("X: %9.2f m", odom.Position.X),
		fmt.Sprintf("Y: %9.2f m", odom.Position.Y),
		fmt.Sprintf("H: %7.1f deg", odom.Heading*180/math.Pi),
	}
	if now.Sub(received) > staleAfter {
		lines = append(lines, "STALE")
	} else {
		worst := filter.Gaussian{Variance: math.Max(odom.Variance[filter.X], odom.Variance[filter.Y])}
		lines = append(lines, fmt.Sprintf("sd: %.2f m", worst.StdDev()))
	}
	return lines
}

// render draws up to four lines of text onto a blank frame.
func render(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if (i+1)*lineHeight > displayHeight {
			break
		}
		drawer.Dot = fixed.P(0, (i+1)*lineHeight)
		drawer.DrawString(line)
	}
	return img
}

func draw(dev *ssd1306.Dev, lines []string) error {
	return dev.Draw(dev.Bounds(), render(lines), image.Point{})
}
