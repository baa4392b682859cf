package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/liliang-cn/paperchat/internal/llm"
	"go.uber.org/zap"
)

const emailSystemPrompt = `You write concise, professional academic outreach emails. Respond with JSON only: {"subject": string, "body": string}.`

// EmailService drafts cold outreach emails
type EmailService struct {
	generator llm.Generator
	logger    *zap.Logger
}

// NewEmailService creates a new email service
func NewEmailService(generator llm.Generator, logger *zap.Logger) *EmailService {
	return &EmailService{
		generator: generator,
		logger:    logger.Named("email"),
	}
}

// Draft writes an email for req. Generation problems fall back to a template.
func (s *EmailService) Draft(ctx context.Context, req *domain.ColdEmailRequest) (*domain.ColdEmail, error) {
	name := strings.TrimSpace(req.RecipientName)
	if name == "" {
		return nil, fmt.Errorf("%w: recipient_name is required", domain.ErrInvalidRequest)
	}

	var email domain.ColdEmail
	err := llm.GenerateJSON(ctx, s.generator, llm.UserPrompt(emailSystemPrompt, emailPrompt(req)), &email)
	if err == nil && strings.TrimSpace(email.Subject) != "" && strings.TrimSpace(email.Body) != "" {
		return &email, nil
	}
	if err == nil {
		err = fmt.Errorf("%w: reply is missing subject or body", domain.ErrGeneration)
	}

	s.logger.Warn("email generation failed, using template", zap.String("recipient", name), zap.Error(err))
	return FallbackEmail(req), nil
}

// FallbackEmail is the static template used when generation is unavailable
func FallbackEmail(req *domain.ColdEmailRequest) *domain.ColdEmail {
	name := strings.TrimSpace(req.RecipientName)
	opportunity := strings.TrimSpace(req.OpportunityContext)
	if opportunity == "" {
		opportunity = "research opportunities in your group"
	}

	body := fmt.Sprintf(`Dear %s,

I hope this message finds you well. I am reaching out to express my interest in %s.

I have followed your work closely and believe my background and research interests align well with your group's focus. I would welcome the opportunity to discuss how I might contribute.

Thank you for your time and consideration. I look forward to hearing from you.

Best regards`, name, opportunity)

	return &domain.ColdEmail{
		Subject: "Research Opportunity Inquiry - " + name,
		Body:    body,
	}
}

func emailPrompt(req *domain.ColdEmailRequest) string {
	tone := req.Tone
	if tone == "" {
		tone = "professional"
	}
	recipientType := req.RecipientType
	if recipientType == "" {
		recipientType = "professor"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a cold email to %s (%s).\n", req.RecipientName, recipientType)
	fmt.Fprintf(&b, "Tone: %s.\n", tone)
	if req.OpportunityContext != "" {
		fmt.Fprintf(&b, "Opportunity: %s\n", req.OpportunityContext)
	}

	if len(req.UserProfile) > 0 {
		keys := make([]string, 0, len(req.UserProfile))
		for k := range req.UserProfile {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("About the sender:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, req.UserProfile[k])
		}
	}

	b.WriteString("Keep it under 200 words and end with a clear, low-effort ask.")
	return b.String()
}
