package cerberus

import (
	"net/url"
	"os"
	"strconv"
	"strings"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/pkg/properties"
)

// AddrEnvVar names the environment variable holding the Cerberus URL.
const AddrEnvVar = "CERBERUS_ADDR"

// Path prefixes of the service endpoints.
const (
	secretPrefix         = "v1/secret"
	secretVersionsPrefix = "v1/secret-versions"
	fileListPrefix       = "v1/secure-files"
	filePrefix           = "v1/secure-file"
	categoryPrefix       = "v1/category"
	rolePrefix           = "v1/role"
	metadataPrefix       = "v1/metadata"
	sdbPrefix            = "v2/safe-deposit-box"
)

// BuildURL joins baseURL, prefix and path and appends pagination. A limit or
// offset of zero or less is left out; when both are present limit comes
// first.
func BuildURL(baseURL, prefix, path string, limit, offset int) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(baseURL, "/"))
	b.WriteString("/")
	b.WriteString(strings.Trim(prefix, "/"))
	if p := escapePath(path); p != "" {
		b.WriteString("/")
		b.WriteString(p)
	}

	sep := "?"
	if limit > 0 {
		b.WriteString(sep + "limit=" + strconv.Itoa(limit))
		sep = "&"
	}
	if offset > 0 {
		b.WriteString(sep + "offset=" + strconv.Itoa(offset))
	}
	return b.String()
}

// escapePath escapes each segment of a slash separated path.
func escapePath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// withQuery adds key=value to u, which may already carry a query.
func withQuery(u, key, value string) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}

// ResolveURL returns the Cerberus URL from CERBERUS_ADDR, falling back to
// the cerberus.addr property.
func ResolveURL() (string, error) {
	if addr := strings.TrimSpace(os.Getenv(AddrEnvVar)); addr != "" {
		return addr, nil
	}
	if addr := strings.TrimSpace(properties.Get(properties.Addr)); addr != "" {
		return addr, nil
	}
	return "", cerrors.NewClientError("unable to find the Cerberus URL: set "+AddrEnvVar+" or the "+properties.Addr+" property", nil)
}
