package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

const (
	minPasswordLength  = 6
	defaultSessionTTL  = 2 * time.Hour
	defaultRememberTTL = 30 * 24 * time.Hour
	defaultIssuer      = "vegshop"
)

// ErrInvalidToken — токен не прошёл проверку подписи или срока действия.
var ErrInvalidToken = errors.New("invalid or expired token")

// Config задаёт параметры выпуска токенов.
type Config struct {
	Secret      []byte
	Issuer      string
	SessionTTL  time.Duration
	RememberTTL time.Duration
	BcryptCost  int
}

// Claims — полезная нагрузка JWT. Subject содержит идентификатор пользователя.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal — аутентифицированный пользователь запроса.
type Principal struct {
	UserID string
	Role   domain.Role
}

// IsAdmin сообщает, есть ли у пользователя права администратора.
func (p Principal) IsAdmin() bool {
	return p.Role == domain.RoleAdmin
}

// Token — выпущенный токен и момент его истечения.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// RegisterInput — данные регистрации.
type RegisterInput struct {
	FirstName         string
	LastName          string
	Email             string
	Password          string
	Phone             string
	Address           string
	City              string
	Pincode           string
	AgreesToMarketing bool
}

// Service регистрирует пользователей и выпускает токены.
type Service struct {
	users  domain.UserRepository
	cfg    Config
	logger *log.Entry
	now    func() time.Time
	newID  func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New создаёт сервис аутентификации.
func New(users domain.UserRepository, cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: jwt secret is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.RememberTTL <= 0 {
		cfg.RememberTTL = defaultRememberTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	s := &Service{
		users:  users,
		cfg:    cfg,
		logger: log.WithField("component", "auth-service"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register создаёт покупателя и выпускает сессионный токен.
// Роль администратора через регистрацию не выдаётся.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, Token, error) {
	user, err := s.newUser(in, domain.RoleUser)
	if err != nil {
		return domain.User{}, Token{}, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, Token{}, err
	}

	token, err := s.issue(user, s.cfg.SessionTTL)
	if err != nil {
		return domain.User{}, Token{}, err
	}
	s.logger.WithField("user_id", user.ID).Info("user registered")
	return user, token, nil
}

// EnsureAdmin создаёт администратора, если пользователя с таким email ещё нет.
func (s *Service) EnsureAdmin(ctx context.Context, in RegisterInput) (domain.User, error) {
	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, err
	}

	user, err := s.newUser(in, domain.RoleAdmin)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}
	s.logger.WithField("user_id", user.ID).Info("admin user created")
	return user, nil
}

// Login проверяет пароль. rememberMe продлевает срок жизни токена.
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) (domain.User, Token, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, Token{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, Token{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, Token{}, domain.ErrInvalidCredentials
	}

	ttl := s.cfg.SessionTTL
	if rememberMe {
		ttl = s.cfg.RememberTTL
	}
	token, err := s.issue(user, ttl)
	if err != nil {
		return domain.User{}, Token{}, err
	}
	return user, token, nil
}

// Verify проверяет подпись и срок действия токена.
func (s *Service) Verify(raw string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

func (s *Service) issue(user domain.User, ttl time.Duration) (Token, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expiresAt}, nil
}

func (s *Service) newUser(in RegisterInput, role domain.Role) (domain.User, error) {
	now := s.now()
	user := domain.User{
		ID:                s.newID(),
		FirstName:         strings.TrimSpace(in.FirstName),
		LastName:          strings.TrimSpace(in.LastName),
		Email:             domain.NormalizeEmail(in.Email),
		Phone:             in.Phone,
		Address:           in.Address,
		City:              in.City,
		Pincode:           in.Pincode,
		Role:              role,
		AgreesToMarketing: in.AgreesToMarketing,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	errs := user.Validate()
	if len(in.Password) < minPasswordLength {
		errs = append(errs, domain.ErrPasswordTooShort)
	}
	if err := domain.NewValidationError(errs); err != nil {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	return user, nil
}
