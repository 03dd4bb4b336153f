// Package mailer — граница с внешним почтовым провайдером. Ядро отдаёт
// письмо провайдеру; доставкой, ретраями и bounce-ами владеет он.
package mailer

import "context"

type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

type Client interface {
	Send(ctx context.Context, msg Message) error
}
