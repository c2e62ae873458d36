package kernel

// ============================================================================
// Request Context Types
// ============================================================================

// AuthMethod identifies how the current request was authenticated.
type AuthMethod string

const (
	// AuthMethodBearer means a gateway-issued access token was presented
	AuthMethodBearer AuthMethod = "bearer"
	// AuthMethodFirebase means an external Firebase ID token was presented
	AuthMethodFirebase AuthMethod = "firebase"
)

// AuthContext is the authentication context injected into each request
// after the bearer middleware has validated a credential.
type AuthContext struct {
	UserID      UserID     `json:"user_id"`
	TenantID    TenantID   `json:"tenant_id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	IsActive    bool       `json:"is_active"`
	IsSuperuser bool       `json:"is_superuser"`
	Method      AuthMethod `json:"method"`
}

// IsValid checks whether the AuthContext identifies a user
func (ac *AuthContext) IsValid() bool {
	return !ac.UserID.IsEmpty() && ac.IsActive
}

// TenantContext is the tenant resolution result attached to every request.
// A nil TenantContext in request locals means "no tenant resolved"; whether
// that is fatal is up to each handler.
type TenantContext struct {
	TenantID  TenantID `json:"tenant_id"`
	Name      string   `json:"name"`
	Subdomain string   `json:"subdomain"`
}

// ============================================================================
// Request Locals Keys
// ============================================================================

const (
	// AuthLocalsKey is the fiber locals key for the AuthContext
	AuthLocalsKey = "auth"

	// TenantLocalsKey is the fiber locals key for the resolved TenantContext
	TenantLocalsKey = "tenant"
)
