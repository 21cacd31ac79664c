package main

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
)

const maxPortAttempts = 10

// listen binds the first free port at or above basePort.
func listen(basePort int, serviceName string) (net.Listener, error) {
	var lastErr error
	for port := basePort; port < basePort+maxPortAttempts; port++ {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			logrus.WithFields(logrus.Fields{
				"service": serviceName,
				"port":    port,
			}).Info("Found available port")
			return lis, nil
		}
		logrus.WithFields(logrus.Fields{
			"service": serviceName,
			"port":    port,
		}).Warn("Port in use, trying next port")
		lastErr = err
	}
	return nil, fmt.Errorf("%s: no free port in [%d, %d): %w", serviceName, basePort, basePort+maxPortAttempts, lastErr)
}
