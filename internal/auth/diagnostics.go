package auth

import (
	"net/http"
	"sort"
	"strings"

	"kimi-proxy/pkg/utils"

	"github.com/charmbracelet/log"
)

// sensitiveHeaders are masked before they reach the log.
var sensitiveHeaders = map[string]bool{
	HeaderAuthorization:   true,
	HeaderGoogAPIKey:      true,
	"Cookie":              true,
	"Proxy-Authorization": true,
}

// LogHeaderSink writes inbound headers to a logger at debug level with
// credential-bearing values masked.
type LogHeaderSink struct {
	Logger *log.Logger
}

// NewLogHeaderSink returns a sink writing to logger, or to the default
// logger when logger is nil.
func NewLogHeaderSink(logger *log.Logger) *LogHeaderSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogHeaderSink{Logger: logger.WithPrefix("headers")}
}

// RecordHeaders logs one line per header, sorted by name.
func (s *LogHeaderSink) RecordHeaders(h http.Header) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		value := strings.Join(h[k], ", ")
		if sensitiveHeaders[http.CanonicalHeaderKey(k)] {
			value = utils.MaskToken(value)
		}
		s.Logger.Debug("inbound header", "name", k, "value", value)
	}
}
