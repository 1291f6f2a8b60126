package app

import (
	"bufio"
	"fmt"
	"io"
	"log"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/gps_imu_localization/internal/config"
	"github.com/relabs-tech/gps_imu_localization/internal/gps"
)

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes each valid fix as JSON on the fix topic.
func RunGPSProducer() error {
	cfg := config.Get()

	client, err := connectMQTT("gps", cfg.MQTTBroker, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return fmt.Errorf("gps: open %s: %w", serialOpts.PortName, err)
	}
	defer port.Close()
	log.Printf("gps: serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	return streamFixes(port, gps.NewParser(), func(f gps.Fix) error {
		if err := publishJSON(client, cfg.TopicGPSFix, false, f); err != nil {
			log.Printf("gps: %v", err)
			return nil
		}
		log.Printf("gps: published fix lat=%.7f lon=%.7f sats=%d hdop=%.1f", f.Latitude, f.Longitude, f.Satellites, f.HDOP)
		return nil
	})
}

// streamFixes reads NMEA lines from r and hands every completed fix to emit
// until r is exhausted or emit fails.
func streamFixes(r io.Reader, p *gps.Parser, emit func(gps.Fix) error) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if fix, ok := p.Feed(line); ok {
				if err := emit(fix); err != nil {
					return err
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gps: read: %w", err)
		}
	}
}
