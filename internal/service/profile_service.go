package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ncert-tutor-go/internal/adaptive"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/repository"
	"ncert-tutor-go/pkg/hash"
	"ncert-tutor-go/pkg/log"
	"ncert-tutor-go/pkg/token"

	"gorm.io/gorm"
)

var (
	handlePattern = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)
	pinPattern    = regexp.MustCompile(`^[0-9]{4,8}$`)
)

// SetupRequest 创建或更新学生档案。
type SetupRequest struct {
	Handle        string `json:"handle"`
	Name          string `json:"name"`
	Age           *int   `json:"age"`
	Grade         int    `json:"grade"`
	LearningStyle string `json:"preferredLearningStyle"`
	PIN           string `json:"pin"`
}

// TokenPair 是登录后签发的一对令牌。
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ProfileService 接口定义了学生档案相关的业务操作。
type ProfileService interface {
	// Setup 在 handle 不存在时创建档案；已存在时需要 callerID 匹配或提供正确的 PIN 才能更新。
	Setup(ctx context.Context, callerID uint, req SetupRequest) (student *model.Student, tokens *TokenPair, created bool, err error)
	Get(ctx context.Context, studentID uint) (*model.Student, error)
	Login(ctx context.Context, handle, pin string) (*model.Student, *TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
}

type profileService struct {
	students   repository.StudentRepository
	selector   *adaptive.Selector
	jwtManager *token.JWTManager
}

// NewProfileService 创建一个新的 ProfileService 实例。
func NewProfileService(students repository.StudentRepository, selector *adaptive.Selector, jwtManager *token.JWTManager) ProfileService {
	return &profileService{students: students, selector: selector, jwtManager: jwtManager}
}

func validateSetup(req *SetupRequest) error {
	req.Handle = strings.ToLower(strings.TrimSpace(req.Handle))
	req.Name = strings.TrimSpace(req.Name)
	if !handlePattern.MatchString(req.Handle) {
		return fmt.Errorf("%w: handle must be 3-32 characters of a-z, 0-9, '.', '_' or '-'", ErrInvalidProfile)
	}
	if req.Name == "" || len([]rune(req.Name)) > 100 {
		return fmt.Errorf("%w: name is required and at most 100 characters", ErrInvalidProfile)
	}
	if !adaptive.ValidGrade(req.Grade) {
		return fmt.Errorf("%w: grade must be between %d and %d", ErrInvalidProfile, adaptive.MinGrade, adaptive.MaxGrade)
	}
	if req.Age != nil && (*req.Age < 5 || *req.Age > 20) {
		return fmt.Errorf("%w: age must be between 5 and 20", ErrInvalidProfile)
	}
	if req.LearningStyle == "" {
		req.LearningStyle = string(adaptive.StyleMixed)
	}
	if _, ok := adaptive.ParseLearningStyle(req.LearningStyle); !ok {
		return fmt.Errorf("%w: unknown learning style %q", ErrInvalidProfile, req.LearningStyle)
	}
	if req.PIN != "" && !pinPattern.MatchString(req.PIN) {
		return fmt.Errorf("%w: pin must be 4-8 digits", ErrInvalidProfile)
	}
	return nil
}

func (s *profileService) Setup(ctx context.Context, callerID uint, req SetupRequest) (*model.Student, *TokenPair, bool, error) {
	// 1. 校验输入
	if err := validateSetup(&req); err != nil {
		return nil, nil, false, err
	}

	// 2. 查找已有档案
	existing, err := s.students.FindByHandle(ctx, req.Handle)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, false, err
	}

	if existing == nil {
		st, err := s.create(ctx, req)
		if err != nil {
			return nil, nil, false, err
		}
		tokens, err := s.issue(st)
		return st, tokens, true, err
	}

	// 3. 更新已有档案需要身份证明
	if callerID != existing.ID && !(existing.HasPIN() && hash.CheckPasswordHash(req.PIN, existing.PinHash)) {
		return nil, nil, false, ErrUnauthorized
	}
	if err := s.update(ctx, existing, req); err != nil {
		return nil, nil, false, err
	}
	tokens, err := s.issue(existing)
	return existing, tokens, false, err
}

func (s *profileService) create(ctx context.Context, req SetupRequest) (*model.Student, error) {
	bucket, _ := adaptive.BucketForGrade(req.Grade)
	st := &model.Student{
		Handle:                 req.Handle,
		Name:                   req.Name,
		Age:                    req.Age,
		Grade:                  req.Grade,
		DifficultyTier:         string(s.selector.Initial(bucket)),
		PreferredLearningStyle: req.LearningStyle,
	}
	if req.PIN != "" {
		h, err := hash.HashPassword(req.PIN)
		if err != nil {
			return nil, err
		}
		st.PinHash = h
	}
	if err := s.students.Create(ctx, st); err != nil {
		return nil, fmt.Errorf("创建学生档案失败: %w", err)
	}
	log.Infow("[ProfileService] 新学生档案", "student_id", st.ID, "grade", st.Grade, "tier", st.DifficultyTier)
	return st, nil
}

func (s *profileService) update(ctx context.Context, st *model.Student, req SetupRequest) error {
	st.Name = req.Name
	st.Age = req.Age
	st.PreferredLearningStyle = req.LearningStyle
	if req.Grade != st.Grade {
		// 换年级段时把层级拉回新年级段的范围内
		st.Grade = req.Grade
		bucket, _ := adaptive.BucketForGrade(req.Grade)
		tier := s.selector.Current(bucket, progressOf(st))
		if string(tier) != st.DifficultyTier {
			log.Infow("[ProfileService] 年级变更调整层级", "student_id", st.ID, "from", st.DifficultyTier, "to", tier)
			st.DifficultyTier = string(tier)
		}
	}
	if req.PIN != "" {
		h, err := hash.HashPassword(req.PIN)
		if err != nil {
			return err
		}
		st.PinHash = h
	}
	if err := s.students.UpdateProfile(ctx, st); err != nil {
		return fmt.Errorf("更新学生档案失败: %w", err)
	}
	return nil
}

func (s *profileService) issue(st *model.Student) (*TokenPair, error) {
	access, err := s.jwtManager.GenerateToken(st.ID, st.Handle, token.RoleStudent)
	if err != nil {
		return nil, err
	}
	refresh, err := s.jwtManager.GenerateRefreshToken(st.ID, st.Handle, token.RoleStudent)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *profileService) Get(ctx context.Context, studentID uint) (*model.Student, error) {
	st, err := s.students.FindByID(ctx, studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	return st, err
}

// Login 使用 handle 与 PIN 登录，未设置 PIN 的档案不能登录。
func (s *profileService) Login(ctx context.Context, handle, pin string) (*model.Student, *TokenPair, error) {
	st, err := s.students.FindByHandle(ctx, strings.ToLower(strings.TrimSpace(handle)))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrUnauthorized
	}
	if err != nil {
		return nil, nil, err
	}
	if !st.HasPIN() || !hash.CheckPasswordHash(pin, st.PinHash) {
		return nil, nil, ErrUnauthorized
	}
	tokens, err := s.issue(st)
	if err != nil {
		return nil, nil, err
	}
	return st, tokens, nil
}

// RefreshToken 验证 refresh token 并签发新的一对令牌。
func (s *profileService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwtManager.VerifyRefreshToken(refreshToken)
	if err != nil || claims.Role != token.RoleStudent {
		return nil, ErrUnauthorized
	}
	st, err := s.students.FindByID(ctx, claims.ID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return s.issue(st)
}
