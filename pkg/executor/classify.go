package executor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"

	"github.com/dukex/strobe/pkg/models"
)

// ClassifyStatus maps an HTTP status code to an error class. 2xx and 3xx
// are terminal success; 4xx is terminal failure; 5xx is retriable.
func ClassifyStatus(status int) models.ErrorClass {
	switch {
	case status >= 200 && status < 400:
		return models.ErrorClassNone
	case status >= 400 && status < 500:
		return models.ErrorClassHTTP4xx
	case status >= 500 && status < 600:
		return models.ErrorClassHTTP5xx
	default:
		return models.ErrorClassUnknown
	}
}

// ClassifyError maps a transport-level failure to an error class. The checks
// unwrap through url.Error and net.OpError, so the order goes from the most
// specific cause outward: DNS and TLS failures before the generic dial
// failure, timeouts before everything that can also time out.
func ClassifyError(err error) models.ErrorClass {
	if err == nil {
		return models.ErrorClassNone
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return models.ErrorClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ErrorClassTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return models.ErrorClassDNS
	}

	if isTLSError(err) {
		return models.ErrorClassSSL
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return models.ErrorClassConnection
	}

	return models.ErrorClassUnknown
}

func isTLSError(err error) bool {
	var (
		verifyErr  *tls.CertificateVerificationError
		recordErr  tls.RecordHeaderError
		authErr    x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
	)

	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &authErr) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}
