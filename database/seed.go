package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sahilchouksey/exam-prep-api/model"
	"github.com/sahilchouksey/exam-prep-api/utils"
	"github.com/sahilchouksey/exam-prep-api/utils/auth"
	"gorm.io/gorm"
)

// SeedOptions come from ADMIN_EMAIL, ADMIN_PASSWORD and SEED_DEMO_EXAM
type SeedOptions struct {
	AdminEmail    string
	AdminPassword string
	DemoExam      bool
}

const demoExamName = "Demo Aptitude Mock"

// Seeder creates the rows a fresh install needs
type Seeder struct {
	db *gorm.DB
}

func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// RunSeeds bootstraps the first admin and, when asked, a demo exam.
// Running it again changes nothing.
func RunSeeds(ctx context.Context, db *gorm.DB, opts SeedOptions) error {
	s := NewSeeder(db)
	if err := s.bootstrapAdmin(ctx, opts.AdminEmail, opts.AdminPassword); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	if opts.DemoExam {
		if err := s.SeedDemoExam(ctx); err != nil {
			return fmt.Errorf("failed to seed demo exam: %w", err)
		}
	}
	return nil
}

// bootstrapAdmin only acts while the users table has no admin at all
func (s *Seeder) bootstrapAdmin(ctx context.Context, email, password string) error {
	var admins int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&admins).Error; err != nil {
		return err
	}
	if admins > 0 {
		return nil
	}
	if email == "" || password == "" {
		utils.L().Warn("no admin account exists and ADMIN_EMAIL/ADMIN_PASSWORD are not set")
		return nil
	}

	if _, err := s.UpsertAdmin(ctx, email, password, "System Administrator"); err != nil {
		return err
	}
	utils.L().Info("bootstrapped admin user", "email", email)
	return nil
}

// UpsertAdmin creates an active admin, or promotes an existing user with that
// email, resets its password and revokes its sessions. It reports whether a
// row was inserted.
func (s *Seeder) UpsertAdmin(ctx context.Context, email, password, name string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}

	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		err := tx.Where("email = ?", email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created = true
			return tx.Create(&model.User{
				Email:        email,
				PasswordHash: hash,
				Name:         name,
				Role:         model.RoleAdmin,
				Status:       model.UserStatusActive,
			}).Error
		}
		if err != nil {
			return err
		}

		return tx.Model(&user).Updates(map[string]interface{}{
			"password_hash": hash,
			"role":          model.RoleAdmin,
			"status":        model.UserStatusActive,
			"token_version": gorm.Expr("token_version + 1"),
		}).Error
	})
	return created, err
}

// SeedDemoExam creates a draft exam with the usual aptitude sections unless
// one with the same name exists
func (s *Seeder) SeedDemoExam(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Exam{}).Where("name = ?", demoExamName).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	exam := model.Exam{
		Name:          demoExamName,
		Category:      "Banking",
		SubCategories: model.StringList{"IBPS PO", "SBI PO"},
		ExamType:      "Mock Test",
		Status:        model.ExamStatusDraft,
		DurationMin:   60,
		Sections: []model.ExamSection{
			{Name: "Quantitative Aptitude", Position: 0, TimeLimitMin: 20, NegativeMarking: true, NegativeMarkValue: 0.25},
			{Name: "Reasoning Ability", Position: 1, TimeLimitMin: 20, NegativeMarking: true, NegativeMarkValue: 0.25},
			{Name: "English Language", Position: 2, TimeLimitMin: 20},
		},
	}
	if err := s.db.WithContext(ctx).Create(&exam).Error; err != nil {
		return err
	}

	utils.L().Info("created demo exam", "exam_id", exam.ID)
	return nil
}
