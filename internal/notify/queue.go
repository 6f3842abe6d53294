package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"storefront-checkout/internal/domain"
)

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// QueuePublisher hands notices to a queue for a downstream delivery worker.
type QueuePublisher struct {
	client   SQSAPI
	queueURL string
}

func NewQueuePublisher(client SQSAPI, queueURL string) *QueuePublisher {
	return &QueuePublisher{client: client, queueURL: queueURL}
}

type queuedNotice struct {
	Event            string    `json:"event"`
	ProjectID        string    `json:"projectId"`
	Owner            string    `json:"owner"`
	Email            string    `json:"email,omitempty"`
	Name             string    `json:"name,omitempty"`
	OrderID          string    `json:"orderId"`
	OrderNumber      string    `json:"orderNumber"`
	PaymentReference string    `json:"paymentReference"`
	AmountCents      int64     `json:"amountCents"`
	Currency         string    `json:"currency"`
	BankName         string    `json:"bankName"`
	AccountNumber    string    `json:"accountNumber"`
	AccountHolder    string    `json:"accountHolder"`
	DueAt            time.Time `json:"dueAt"`
}

func (p *QueuePublisher) Send(ctx context.Context, n domain.OrderNotice) error {
	in := n.Instructions
	body, err := json.Marshal(queuedNotice{
		Event:            "order.placed",
		ProjectID:        n.ProjectID,
		Owner:            n.Owner.Key(),
		Email:            n.Email,
		Name:             n.Name,
		OrderID:          n.Order.ID,
		OrderNumber:      in.OrderNumber,
		PaymentReference: in.PaymentReference,
		AmountCents:      in.AmountCents,
		Currency:         in.Currency,
		BankName:         in.Destination.BankName,
		AccountNumber:    in.Destination.AccountNumber,
		AccountHolder:    in.Destination.AccountHolder,
		DueAt:            in.DueAt,
	})
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event":        {DataType: aws.String("String"), StringValue: aws.String("order.placed")},
			"order_number": {DataType: aws.String("String"), StringValue: aws.String(in.OrderNumber)},
		},
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
