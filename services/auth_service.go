package services

import (
	"errors"
	"fmt"
	"time"

	"livepoll/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	db        *gorm.DB
	jwtSecret string
}

func NewAuthService(db *gorm.DB, jwtSecret string) *AuthService {
	return &AuthService{db: db, jwtSecret: jwtSecret}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (s *AuthService) Register(req *RegisterRequest) (*models.Presenter, error) {
	var existing models.Presenter
	if err := s.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	presenter := models.Presenter{
		Email:    req.Email,
		Password: string(hash),
		Name:     req.Name,
	}
	if err := s.db.Create(&presenter).Error; err != nil {
		return nil, err
	}
	return &presenter, nil
}

func (s *AuthService) Login(req *LoginRequest) (string, *models.Presenter, error) {
	var presenter models.Presenter
	if err := s.db.Where("email = ?", req.Email).First(&presenter).Error; err != nil {
		return "", nil, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(presenter.Password), []byte(req.Password)); err != nil {
		return "", nil, errors.New("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": presenter.ID,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", nil, err
	}
	return signed, &presenter, nil
}

func (s *AuthService) GetPresenter(presenterID uint) (*models.Presenter, error) {
	var presenter models.Presenter
	if err := s.db.First(&presenter, presenterID).Error; err != nil {
		return nil, fmt.Errorf("%w: presenter %d", ErrNotFound, presenterID)
	}
	return &presenter, nil
}
