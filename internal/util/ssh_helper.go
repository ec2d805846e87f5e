package util

import (
	"fmt"
	"io"
	"net"
	"strings"

	log "github.com/sirupsen/logrus"
)

// getOutboundIP retrieves the preferred outbound IP address of this machine.
// The UDP dial sends no packets; it only asks the kernel which source address it would use.
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			log.Warnf("Failed to close UDP connection: %v", closeErr)
		}
	}()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("could not assert UDP address type")
	}
	return localAddr.IP.String(), nil
}

// GetIPAddress returns the outbound IP address, or 127.0.0.1 when it cannot be determined.
func GetIPAddress() string {
	outboundIP, err := getOutboundIP()
	if err == nil {
		log.Debugf("Outbound IP detected: %s", outboundIP)
		return outboundIP
	}
	log.Warnf("Failed to detect outbound IP address: %v", err)
	return "127.0.0.1"
}

// PrintSSHTunnelInstructions writes the commands a user runs on their own machine to reach
// the callback listener on this host through an SSH tunnel. The redirect URI must then use
// localhost so the browser's redirect travels through the tunnel.
//
// Parameters:
//   - w: Destination for the instructions
//   - port: The callback listener port
//   - ipAddress: Address of this host as seen from the user's machine
func PrintSSHTunnelInstructions(w io.Writer, port int, ipAddress string) {
	border := strings.Repeat("=", 80)
	_, _ = fmt.Fprintln(w, "To authorize from a remote machine, an SSH tunnel may be required.")
	_, _ = fmt.Fprintln(w, border)
	_, _ = fmt.Fprintln(w, "  Run one of the following commands on your local machine (NOT the server):")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "  # Standard SSH command (assumes SSH port 22):\n")
	_, _ = fmt.Fprintf(w, "  ssh -L %d:127.0.0.1:%d root@%s -p 22\n", port, port, ipAddress)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "  # If using an SSH key (assumes SSH port 22):\n")
	_, _ = fmt.Fprintf(w, "  ssh -i <path_to_your_key> -L %d:127.0.0.1:%d root@%s -p 22\n", port, port, ipAddress)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "  Then open http://localhost:%d/auth/start in your local browser.\n", port)
	_, _ = fmt.Fprintln(w, border)
}
