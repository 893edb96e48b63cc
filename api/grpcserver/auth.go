package grpcserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"custody/domain/asset"
)

const (
	authHeader   = "authorization"
	bearerPrefix = "Bearer "
)

// KeyDigest is the hex SHA-256 of an API key. Configuration stores digests,
// never keys.
func KeyDigest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Principals maps API key digests to the address each key acts as.
type Principals struct {
	byDigest map[[sha256.Size]byte]asset.Address
}

func NewPrincipals(digests map[string]asset.Address) (*Principals, error) {
	p := &Principals{byDigest: make(map[[sha256.Size]byte]asset.Address, len(digests))}
	for d, addr := range digests {
		raw, err := hex.DecodeString(d)
		if err != nil || len(raw) != sha256.Size {
			return nil, fmt.Errorf("api key digest %q: want %d hex bytes", d, sha256.Size)
		}
		if addr.IsZero() {
			return nil, errors.New("api key bound to the zero address")
		}
		var k [sha256.Size]byte
		copy(k[:], raw)
		p.byDigest[k] = addr
	}
	return p, nil
}

func (p *Principals) resolve(key string) (asset.Address, bool) {
	addr, ok := p.byDigest[sha256.Sum256([]byte(key))]
	return addr, ok
}

type principalKey struct{}

func principalFrom(ctx context.Context) (asset.Address, bool) {
	addr, ok := ctx.Value(principalKey{}).(asset.Address)
	return addr, ok
}

// UnaryAuth resolves a bearer key to the address it acts as. Calls without
// a key pass through unauthenticated; commands reject them, queries do not
// need one. An unknown key is refused outright.
func UnaryAuth(p *Principals) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		vals := md.Get(authHeader)
		if len(vals) == 0 {
			return handler(ctx, req)
		}
		key, ok := strings.CutPrefix(vals[0], bearerPrefix)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "authorization must be a bearer key")
		}
		addr, ok := p.resolve(key)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "unknown api key")
		}
		return handler(context.WithValue(ctx, principalKey{}, addr), req)
	}
}

// WithAPIKey attaches key to outgoing calls made with ctx.
func WithAPIKey(ctx context.Context, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, authHeader, bearerPrefix+key)
}

// caller returns the authenticated address. A request naming a different
// address is refused; a request naming none acts as the principal.
func caller(ctx context.Context, named asset.Address) (asset.Address, error) {
	p, ok := principalFrom(ctx)
	if !ok {
		return asset.Address{}, status.Error(codes.Unauthenticated, "command requires an api key")
	}
	if !named.IsZero() && named != p {
		return asset.Address{}, status.Errorf(codes.PermissionDenied, "key acts as %s, request names %s", p, named)
	}
	return p, nil
}
