// Package auth はユーザー登録、パスワード認証、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/newshub/internal/metrics"
	"github.com/hitoshi/newshub/internal/model"
	"github.com/hitoshi/newshub/internal/repository"
)

// 入力値の制約
const (
	minUsernameLength = 3
	maxUsernameLength = 100
	minPasswordLength = 6
	// maxPasswordBytes はbcryptが扱える最大バイト数。
	maxPasswordBytes = 72
	maxEmailLength   = 255
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Username string
	Password string
	Email    string
	Role     model.Role // 空の場合はuser
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	// dummyHash は存在しないユーザーのログイン時に比較するハッシュ。
	dummyHash []byte
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) (*Service, error) {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.BcryptCost < bcrypt.MinCost || config.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost out of range: %d", config.BcryptCost)
	}
	if mc == nil {
		mc = metrics.Nop{}
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hash: %w", err)
	}

	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
		metrics:     mc,
		logger:      logger,
		dummyHash:   dummy,
		now:         time.Now,
	}, nil
}

// validateRegister は登録入力を検証し、正規化した入力を返す。
func validateRegister(in RegisterInput) (RegisterInput, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	n := utf8.RuneCountInString(in.Username)
	if n < minUsernameLength || n > maxUsernameLength {
		return in, model.NewValidationError(model.ErrCodeInvalidUsername,
			fmt.Sprintf("ユーザー名は%d〜%d文字で入力してください。", minUsernameLength, maxUsernameLength))
	}

	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		return in, model.NewValidationError(model.ErrCodeInvalidPassword,
			fmt.Sprintf("パスワードは%d文字以上で入力してください。", minPasswordLength))
	}
	if len(in.Password) > maxPasswordBytes {
		return in, model.NewValidationError(model.ErrCodeInvalidPassword,
			fmt.Sprintf("パスワードは%dバイト以内で入力してください。", maxPasswordBytes))
	}

	if in.Email != "" {
		addr, err := mail.ParseAddress(in.Email)
		if err != nil || addr.Address != in.Email || len(in.Email) > maxEmailLength {
			return in, model.NewValidationError(model.ErrCodeInvalidEmail, "メールアドレスの形式が正しくありません。")
		}
	}

	if in.Role == "" {
		in.Role = model.RoleUser
	}
	if !in.Role.IsValid() {
		return in, model.NewValidationError(model.ErrCodeInvalidRole,
			fmt.Sprintf("無効なロールです: %s", in.Role))
	}
	return in, nil
}

// Register はユーザーを登録する。
// 検証は永続化の前に行い、ユーザー名が重複する場合は既存ユーザーを変更せずconflictエラーを返す。
// 最初のユーザーはリポジトリが挿入と同時にadminへ昇格させる。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in, err := validateRegister(in)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		PasswordHash: string(hash),
		Email:        in.Email,
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, model.NewDuplicateUsernameError(in.Username)
		}
		s.logger.Error("ユーザーの作成に失敗しました",
			slog.String("username", in.Username),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDatabaseError()
	}

	s.logger.Info("ユーザーを登録しました",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// ResolveRole は新規登録ユーザーに付与するロールを決める。
// 最初のユーザーは常にadmin、以降は管理者が指定した場合のみ指定ロール、それ以外はuser。
func (s *Service) ResolveRole(ctx context.Context, actor *model.SessionUser, requested model.Role) (model.Role, error) {
	count, err := s.CountUsers(ctx)
	if err != nil {
		return "", err
	}
	if count == 0 {
		return model.RoleAdmin, nil
	}
	if actor != nil && actor.Role == model.RoleAdmin && requested != "" {
		return requested, nil
	}
	return model.RoleUser, nil
}

// Login はユーザー名とパスワードを検証し、新しいセッションを発行する。
// 成功時はcurrentSessionIDのセッションを破棄してIDを必ず入れ替える。
// 失敗時はユーザーの存在有無に関わらず同じエラーを返し、状態を変更しない。
func (s *Service) Login(ctx context.Context, currentSessionID, username, password string) (*model.Session, error) {
	username = strings.TrimSpace(username)

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginFailure)
		s.logger.Error("ユーザーの検索に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewDatabaseError()
	}

	hash := s.dummyHash
	if user != nil {
		hash = []byte(user.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || user == nil {
		s.metrics.RecordLogin(metrics.LoginFailure)
		s.logger.Info("ログインに失敗しました", slog.String("username", username))
		return nil, model.NewInvalidCredentialsError()
	}

	if currentSessionID != "" {
		if err := s.sessionRepo.DeleteByID(ctx, currentSessionID); err != nil {
			s.logger.Warn("旧セッションの削除に失敗しました", slog.String("error", err.Error()))
		}
	}

	session, err := s.createSession(ctx, user)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginFailure)
		s.logger.Error("セッションの作成に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDatabaseError()
	}

	s.metrics.RecordLogin(metrics.LoginSuccess)
	s.logger.Info("ログインしました",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return session, nil
}

// Logout はセッションを破棄する。セッションIDが空の場合は何もしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.logger.Info("ログアウトしました")
	return nil
}

// CurrentUser はセッションに紐づくユーザーを返す。
// セッションが存在しない、期限切れ、または取得に失敗した場合はnilを返す。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) *model.SessionUser {
	if sessionID == "" {
		return nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		s.logger.Error("セッションの検索に失敗しました", slog.String("error", err.Error()))
		return nil
	}
	if session == nil {
		return nil
	}
	return session.User()
}

// IsAuthenticated はセッションが有効かどうかを返す。
func (s *Service) IsAuthenticated(ctx context.Context, sessionID string) bool {
	return s.CurrentUser(ctx, sessionID) != nil
}

// CountUsers は登録ユーザー数を返す。
func (s *Service) CountUsers(ctx context.Context) (int, error) {
	n, err := s.userRepo.Count(ctx)
	if err != nil {
		s.logger.Error("ユーザー数の取得に失敗しました", slog.String("error", err.Error()))
		return 0, model.NewDatabaseError()
	}
	return n, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, user *model.User) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
