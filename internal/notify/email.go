package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/repository"
)

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailNotifier mails event summaries to the contact address of each
// recipient organization through SendGrid.
type EmailNotifier struct {
	client    mailSender
	orgs      OrganizationDirectory
	fromEmail string
	fromName  string
}

func NewEmailNotifier(apiKey, fromEmail, fromName string, orgs OrganizationDirectory) *EmailNotifier {
	return newEmailNotifier(sendgrid.NewSendClient(apiKey), fromEmail, fromName, orgs)
}

func newEmailNotifier(client mailSender, fromEmail, fromName string, orgs OrganizationDirectory) *EmailNotifier {
	return &EmailNotifier{client: client, orgs: orgs, fromEmail: fromEmail, fromName: fromName}
}

// Listen is an events.Listener.
func (n *EmailNotifier) Listen(ctx context.Context, ev domain.Event) error {
	msg := Render(ev)
	return deliverAll(ctx, Recipients(ev), func(ctx context.Context, orgID string) error {
		return n.sendToOrganization(ctx, orgID, msg.Title, msg.Body)
	})
}

// SendOverdueReminder asks the borrowing organization to return equipment
// whose scheduled return date has passed.
func (n *EmailNotifier) SendOverdueReminder(ctx context.Context, t domain.EquipmentTransfer, now time.Time) error {
	if t.ReturnScheduledDate == nil {
		return nil
	}
	days := int(domain.DateOf(now).Sub(domain.DateOf(*t.ReturnScheduledDate)).Hours() / 24)
	subject := "Equipment return overdue"
	body := fmt.Sprintf("Equipment %s was due back on %s and is %d day(s) overdue.\nTransfer: %s",
		t.EquipmentID, t.ReturnScheduledDate.Format(time.DateOnly), days, t.ID)
	return n.sendToOrganization(ctx, t.ToOrganizationID, subject, body)
}

func (n *EmailNotifier) sendToOrganization(ctx context.Context, orgID, subject, body string) error {
	org, err := n.orgs.GetByID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("lookup organization %s: %w", orgID, err)
	}
	if org.ContactEmail == "" {
		logger.Debug("Organization has no contact email; skipping", "organization_id", orgID)
		return nil
	}
	return n.send(ctx, org.ContactEmail, org.ContactName, subject, body)
}

func (n *EmailNotifier) send(ctx context.Context, to, toName, subject, plainText string) error {
	from := mail.NewEmail(n.fromName, n.fromEmail)
	recipient := mail.NewEmail(toName, to)
	htmlContent := "<p>" + strings.ReplaceAll(html.EscapeString(plainText), "\n", "<br>") + "</p>"
	message := mail.NewSingleEmail(from, subject, recipient, plainText, htmlContent)

	logger.ExternalServiceCall("sendgrid", "send", "to", to, "subject", subject)
	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		logger.ExternalServiceResult("sendgrid", "send", err)
		return &repository.TransientError{Op: "sendgrid send", Err: err}
	}
	if response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
		logger.ExternalServiceResult("sendgrid", "send", err)
		if response.StatusCode >= 500 || response.StatusCode == 429 {
			return &repository.TransientError{Op: "sendgrid send", Err: err}
		}
		return err
	}
	logger.ExternalServiceResult("sendgrid", "send", nil, "status", response.StatusCode)
	return nil
}
