package chi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/toxfilter/internal/logger"
)

// Routes reachable without a key: probes and scrapes.
var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

type apiKey struct {
	digest [sha256.Size]byte
	id     string
}

// BearerAuthMiddleware checks the Authorization: Bearer <key> header against apiKeys.
// Blank keys are ignored; with none left the middleware is a pass-through.
// Websocket upgrades may carry the key in ?access_token= instead, since browsers
// cannot set headers on them. The matched key's short id is added to the request log scope.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	var keys []apiKey
	for _, k := range apiKeys {
		if k == "" {
			continue
		}
		d := sha256.Sum256([]byte(k))
		keys = append(keys, apiKey{digest: d, id: hex.EncodeToString(d[:4])})
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token, problem := credential(r)
			if problem != "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, problem)
				return
			}
			id, ok := lookupKey(keys, token)
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
				return
			}
			logpkg.AddFields(r.Context(), zap.String("api_key_id", id))
			next.ServeHTTP(w, r)
		})
	}
}

// credential extracts the presented key, or describes why none is usable.
func credential(r *http.Request) (token, problem string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if q := r.URL.Query().Get("access_token"); q != "" && isWebsocketUpgrade(r) {
			return q, ""
		}
		return "", "missing authorization header"
	}
	scheme, rest, found := strings.Cut(header, " ")
	if !found || scheme != "Bearer" {
		return "", "authorization header must use Bearer scheme"
	}
	return rest, ""
}

// lookupKey compares digests in constant time and checks every key.
func lookupKey(keys []apiKey, token string) (string, bool) {
	d := sha256.Sum256([]byte(token))
	matched := ""
	for _, k := range keys {
		if subtle.ConstantTimeCompare(d[:], k.digest[:]) == 1 {
			matched = k.id
		}
	}
	return matched, matched != ""
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
