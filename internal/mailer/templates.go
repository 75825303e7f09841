package mailer

import "fmt"

// Template enumerates every email the system can send. Enqueue rejects
// anything else.
type Template string

const (
	TemplateVerify          Template = "verify"
	TemplateReset           Template = "password_reset"
	TemplatePasswordChanged Template = "password_changed"
	TemplateAccountLocked   Template = "account_locked"
	TemplateTwoFAEnabled    Template = "two_fa_enabled"
	TemplateTwoFADisabled   Template = "two_fa_disabled"
	TemplateTwoFABackupOff  Template = "two_fa_backup_disabled"
)

// ValidTemplates guards the enqueue path.
var ValidTemplates = map[Template]bool{
	TemplateVerify:          true,
	TemplateReset:           true,
	TemplatePasswordChanged: true,
	TemplateAccountLocked:   true,
	TemplateTwoFAEnabled:    true,
	TemplateTwoFADisabled:   true,
	TemplateTwoFABackupOff:  true,
}

// subject returns the subject line for a template.
func subject(t Template) string {
	switch t {
	case TemplateVerify:
		return "Verify Email Address"
	case TemplateReset:
		return "Password Reset Requested"
	case TemplatePasswordChanged:
		return "Password Changed"
	case TemplateAccountLocked:
		return "Security Alert"
	case TemplateTwoFAEnabled:
		return "Two-Factor Enabled"
	case TemplateTwoFADisabled:
		return "Two-Factor Disabled"
	case TemplateTwoFABackupOff:
		return "Two-Factor Backup Disabled"
	default:
		return "Meal Pedant"
	}
}

// body renders the plain-text body. The HTML layer around this text is an
// external collaborator; the line content here is the contract.
func body(e Email) string {
	greet := fmt.Sprintf("Hi %s,\n\n", e.Name)
	switch e.Template {
	case TemplateVerify:
		return greet + "Welcome to Meal Pedant. Please verify your email address to continue:\n\n" + e.Link + "\n"
	case TemplateReset:
		return greet + "A password reset was requested for this address. The link is valid for one hour:\n\n" + e.Link + "\n\nIf this wasn't you, no action is needed.\n"
	case TemplatePasswordChanged:
		return greet + "The password for your account has just been changed.\n\nIf this wasn't you, contact us immediately.\n"
	case TemplateAccountLocked:
		return greet + "Your account has been locked after repeated failed signin attempts.\n\nContact us to unlock it.\n"
	case TemplateTwoFAEnabled:
		return greet + "Two-factor authentication has been enabled on your account.\n"
	case TemplateTwoFADisabled:
		return greet + "Two-factor authentication has been disabled on your account.\n"
	case TemplateTwoFABackupOff:
		return greet + "Your two-factor backup codes have been removed.\n"
	default:
		return greet
	}
}
