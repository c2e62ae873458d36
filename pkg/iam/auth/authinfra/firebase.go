package authinfra

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Abraxas-365/cabina/pkg/iam/auth"
	"github.com/golang-jwt/jwt/v5"
)

// defaultCertsURL serves the x509 certificates Firebase signs ID tokens
// with, as a JSON object of kid -> PEM certificate.
const defaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

const certsCacheTTL = 1 * time.Hour

// FirebaseVerifier implements auth.IdentityVerifier by validating Firebase
// ID tokens against Google's published signing certificates. Certificates
// are cached briefly; token verification itself is never cached.
type FirebaseVerifier struct {
	projectID string
	certsURL  string
	http      *http.Client

	mu      sync.RWMutex
	certs   map[string]string
	certsAt time.Time
}

// NewFirebaseVerifier creates a verifier for the given Firebase project.
// certsURL may be empty to use Google's endpoint; timeout bounds every
// outbound call.
func NewFirebaseVerifier(projectID, certsURL string, timeout time.Duration) *FirebaseVerifier {
	if certsURL == "" {
		certsURL = defaultCertsURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &FirebaseVerifier{
		projectID: projectID,
		certsURL:  certsURL,
		http:      &http.Client{Timeout: timeout},
	}
}

// Verify checks a Firebase ID token and extracts the stable uid and email.
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*auth.Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return v.publicKey(ctx, kid)
	},
		jwt.WithIssuer("https://securetoken.google.com/"+v.projectID),
		jwt.WithAudience(v.projectID),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, auth.ErrIdentityTokenExpired()
		}
		return nil, auth.ErrIdentityTokenInvalid().WithCause(err)
	}
	if !token.Valid {
		return nil, auth.ErrIdentityTokenInvalid()
	}

	uid, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if uid == "" || email == "" {
		return nil, auth.ErrIdentityIncomplete()
	}

	return &auth.Identity{
		UID:   uid,
		Email: email,
		Name:  name,
	}, nil
}

// publicKey resolves a kid to the RSA public key of its certificate.
func (v *FirebaseVerifier) publicKey(ctx context.Context, kid string) (any, error) {
	certs, err := v.getCerts(ctx)
	if err != nil {
		return nil, err
	}

	pemCert, ok := certs[kid]
	if !ok {
		// Key rotation may have happened since the cache was filled.
		certs, err = v.fetchCerts(ctx)
		if err != nil {
			return nil, err
		}
		if pemCert, ok = certs[kid]; !ok {
			return nil, fmt.Errorf("no certificate for kid %q", kid)
		}
	}

	block, _ := pem.Decode([]byte(pemCert))
	if block == nil {
		return nil, errors.New("malformed certificate in keyset")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}
	return cert.PublicKey, nil
}

func (v *FirebaseVerifier) getCerts(ctx context.Context) (map[string]string, error) {
	v.mu.RLock()
	certs := v.certs
	stale := time.Since(v.certsAt) > certsCacheTTL
	v.mu.RUnlock()

	if certs != nil && !stale {
		return certs, nil
	}
	return v.fetchCerts(ctx)
}

func (v *FirebaseVerifier) fetchCerts(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("certs endpoint http %d", resp.StatusCode)
	}

	certs := map[string]string{}
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.certs = certs
	v.certsAt = time.Now()
	v.mu.Unlock()

	return certs, nil
}
