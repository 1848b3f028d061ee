package i2cmux

import (
	"fmt"

	"gobot.io/x/gobot/sysfs"
)

// OpenDevfs opens a Linux i2c-dev character device such as /dev/i2c-1.
func OpenDevfs(path string) (Device, error) {
	dev, err := sysfs.NewI2cDevice(path)
	if err != nil {
		return nil, fmt.Errorf("open i2c device %s: %w", path, err)
	}
	return dev, nil
}
