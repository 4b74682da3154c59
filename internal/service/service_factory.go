package service

import (
	"github.com/awaisamjad-SE/Real-MFA-1/internal/audit"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/cache"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/config"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/event"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/geo"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/hashing"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/ratelimit"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/token"
)

// Repositories bundles the storage interfaces the services run on.
type Repositories struct {
	Users       repository.UserRepository
	Devices     repository.DeviceRepository
	Sessions    repository.SessionRepository
	OTPs        repository.OTPRepository
	TOTPs       repository.TOTPRepository
	BackupCodes repository.BackupCodeRepository
}

// Infrastructure bundles the cross-cutting dependencies.
type Infrastructure struct {
	Hasher      *hashing.Hasher
	Tokens      *token.Manager
	Blacklist   *token.Blacklist
	Pending     *cache.PendingCache
	Limiter     *ratelimit.Limiter
	GeoResolver *geo.Resolver
	Dispatcher  *event.Dispatcher
	Auditor     *audit.Recorder
}

// ServiceFactory builds the service graph lazily, one singleton per service.
type ServiceFactory struct {
	repos Repositories
	infra Infrastructure
	cfg   *config.Config

	credentials *CredentialService
	otps        *OTPService
	totps       *TOTPService
	devices     *DeviceService
	sessions    *SessionService
	auth        *AuthService
	accounts    *AccountService
}

func NewServiceFactory(repos Repositories, infra Infrastructure, cfg *config.Config) *ServiceFactory {
	return &ServiceFactory{repos: repos, infra: infra, cfg: cfg}
}

// UserRepository exposes the user store for callers outside the service
// layer, mainly the auth middleware.
func (f *ServiceFactory) UserRepository() repository.UserRepository {
	return f.repos.Users
}

// Hasher exposes the password hasher for handler-level password re-checks.
func (f *ServiceFactory) Hasher() *hashing.Hasher {
	return f.infra.Hasher
}

func (f *ServiceFactory) CredentialService() *CredentialService {
	if f.credentials == nil {
		f.credentials = NewCredentialService(f.repos.Users, f.infra.Hasher, f.cfg, f.infra.Dispatcher, f.infra.Auditor)
	}
	return f.credentials
}

func (f *ServiceFactory) OTPService() *OTPService {
	if f.otps == nil {
		f.otps = NewOTPService(f.repos.OTPs, f.cfg)
	}
	return f.otps
}

func (f *ServiceFactory) TOTPService() *TOTPService {
	if f.totps == nil {
		f.totps = NewTOTPService(f.repos.TOTPs, f.repos.BackupCodes, f.repos.Users, f.cfg, f.infra.Dispatcher)
	}
	return f.totps
}

func (f *ServiceFactory) DeviceService() *DeviceService {
	if f.devices == nil {
		f.devices = NewDeviceService(f.repos.Devices, f.repos.Sessions, f.cfg, f.infra.Auditor)
	}
	return f.devices
}

func (f *ServiceFactory) SessionService() *SessionService {
	if f.sessions == nil {
		f.sessions = NewSessionService(
			f.repos.Sessions, f.repos.Devices,
			f.infra.Tokens, f.infra.Blacklist,
			f.cfg, f.infra.Auditor,
		)
	}
	return f.sessions
}

func (f *ServiceFactory) AuthService() *AuthService {
	if f.auth == nil {
		f.auth = NewAuthService(
			f.repos.Users,
			f.CredentialService(),
			f.DeviceService(),
			f.SessionService(),
			f.OTPService(),
			f.TOTPService(),
			f.infra.Pending,
			f.infra.Limiter,
			f.infra.GeoResolver,
			f.infra.Tokens,
			f.infra.Blacklist,
			f.infra.Dispatcher,
			f.infra.Auditor,
			f.cfg,
		)
	}
	return f.auth
}

func (f *ServiceFactory) AccountService() *AccountService {
	if f.accounts == nil {
		f.accounts = NewAccountService(
			f.repos.Users,
			f.OTPService(),
			f.SessionService(),
			f.infra.Hasher,
			f.infra.Pending,
			f.infra.Limiter,
			f.infra.Dispatcher,
			f.infra.Auditor,
			f.cfg,
		)
	}
	return f.accounts
}
