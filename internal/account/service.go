package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jask/finsense/internal/api"
	"github.com/jask/finsense/internal/logging"
	"github.com/jask/finsense/internal/session"
)

// Server discriminants sent in the "detail" field of a rejected login.
const (
	DetailAccountNotFound   = "ACCOUNT_NOT_FOUND"
	DetailIncorrectPassword = "INCORRECT_PASSWORD"
)

var (
	ErrMissingFields     = errors.New("missing required fields")
	ErrAccountNotFound   = errors.New("account not found")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrLoginFailed       = errors.New("login failed")
	ErrLoginUnreachable  = errors.New("login: server unreachable")
	ErrSignupFailed      = errors.New("signup failed")
	ErrSignupUnreachable = errors.New("signup: server unreachable")
)

// SignupRejected carries the server's reason for refusing a signup, e.g. an
// account that already exists.
type SignupRejected struct {
	Detail string
}

func (e *SignupRejected) Error() string { return "signup rejected: " + e.Detail }

// Authenticator is the slice of the API client used here.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (api.LoginResponse, error)
	Signup(ctx context.Context, name, email, password string) (api.SignupResponse, error)
}

// Sessions persists the credential and profile after a successful sign-in.
type Sessions interface {
	SetToken(token string) error
	SetProfile(p session.Profile) error
	Clear() error
}

// Service runs the login and signup workflows.
type Service struct {
	auth     Authenticator
	sessions Sessions
	logger   *log.Logger
}

func NewService(auth Authenticator, sessions Sessions, logger *log.Logger) *Service {
	return &Service{auth: auth, sessions: sessions, logger: logging.Component(logger, "account")}
}

// Login signs in and stores the token with the user's email and name.
func (s *Service) Login(ctx context.Context, email, password string) (session.Profile, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return session.Profile{}, ErrMissingFields
	}
	resp, err := s.auth.Login(ctx, email, password)
	if err != nil {
		var apiErr *api.APIError
		if !errors.As(err, &apiErr) {
			s.logger.Warn("login transport", "err", err)
			return session.Profile{}, fmt.Errorf("%w: %w", ErrLoginUnreachable, err)
		}
		switch apiErr.Detail {
		case DetailAccountNotFound:
			return session.Profile{}, ErrAccountNotFound
		case DetailIncorrectPassword:
			return session.Profile{}, ErrIncorrectPassword
		default:
			s.logger.Info("login rejected", "status", apiErr.StatusCode, "detail", apiErr.Detail)
			return session.Profile{}, ErrLoginFailed
		}
	}
	profile := session.Profile{Name: resp.UserName, Email: email}
	if err := s.persist(resp.AccessToken, profile); err != nil {
		return session.Profile{}, err
	}
	s.logger.Info("signed in", "email", email)
	return profile, nil
}

// Signup creates the account and signs in with the returned token.
func (s *Service) Signup(ctx context.Context, name, email, password string) (session.Profile, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return session.Profile{}, ErrMissingFields
	}
	resp, err := s.auth.Signup(ctx, name, email, password)
	if err != nil {
		var apiErr *api.APIError
		if !errors.As(err, &apiErr) {
			s.logger.Warn("signup transport", "err", err)
			return session.Profile{}, fmt.Errorf("%w: %w", ErrSignupUnreachable, err)
		}
		if apiErr.Detail != "" {
			return session.Profile{}, &SignupRejected{Detail: apiErr.Detail}
		}
		return session.Profile{}, ErrSignupFailed
	}
	profile := session.Profile{Name: name, Email: email}
	if err := s.persist(resp.AccessToken, profile); err != nil {
		return session.Profile{}, err
	}
	s.logger.Info("signed up", "email", email)
	return profile, nil
}

// Logout drops the stored session.
func (s *Service) Logout() error {
	if err := s.sessions.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Service) persist(token string, p session.Profile) error {
	if err := s.sessions.SetToken(token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := s.sessions.SetProfile(p); err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	return nil
}

// Message is the copy shown to the user for an error from Login or Signup.
func Message(err error) string {
	var rejected *SignupRejected
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingFields):
		return "Please fill in all fields"
	case errors.Is(err, ErrAccountNotFound):
		return "Account doesn’t exist"
	case errors.Is(err, ErrIncorrectPassword):
		return "Incorrect password"
	case errors.Is(err, ErrLoginFailed):
		return "Login failed"
	case errors.Is(err, ErrLoginUnreachable):
		return "Server unreachable. Try again."
	case errors.As(err, &rejected):
		return rejected.Detail
	case errors.Is(err, ErrSignupFailed):
		return "Signup failed"
	case errors.Is(err, ErrSignupUnreachable):
		return "Signup failed. Try again."
	default:
		return "Something went wrong. Try again."
	}
}
