// Package mail - почтовые уведомления о событиях заказа. Вызовы
// "выстрелил и забыл": ядро не зависит от их успеха.
package mail

import (
	"fmt"
	"log"

	"gopkg.in/gomail.v2"
)

type OrderMailer interface {
	NotifyOrderReceived(to string, orderID int)
	NotifyNewNegotiation(to string, orderID int)
	NotifyDeliverableUpdated(to string, orderID, orderDetailID int)
	NotifyOrderCompleted(to string, orderID int)
}

// SMTPMailer отправляет письма через SMTP. Ошибки отправки только
// логируются: сбой почты не должен ронять операцию над заказом.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, user, password string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   user,
	}
}

func (m *SMTPMailer) send(to, subject, body string) {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		log.Printf("mail: send to %s failed: %v", to, err)
	}
}

func (m *SMTPMailer) NotifyOrderReceived(to string, orderID int) {
	m.send(to, fmt.Sprintf("Заказ [%d] принят", orderID),
		fmt.Sprintf("Ваш заказ [%d] принят исполнителем.", orderID))
}

func (m *SMTPMailer) NotifyNewNegotiation(to string, orderID int) {
	m.send(to, fmt.Sprintf("Новое предложение по заказу [%d]", orderID),
		fmt.Sprintf("По заказу [%d] поступило встречное предложение.", orderID))
}

func (m *SMTPMailer) NotifyDeliverableUpdated(to string, orderID, orderDetailID int) {
	m.send(to, fmt.Sprintf("Обновление по заказу [%d]", orderID),
		fmt.Sprintf("По строке [%d] заказа [%d] загружен результат, ожидается проверка.", orderDetailID, orderID))
}

func (m *SMTPMailer) NotifyOrderCompleted(to string, orderID int) {
	m.send(to, fmt.Sprintf("Заказ [%d] завершён", orderID),
		fmt.Sprintf("Заказ [%d] успешно завершён.", orderID))
}

// Noop используется, когда SMTP не настроен, и в тестах.
type Noop struct{}

func (Noop) NotifyOrderReceived(string, int)           {}
func (Noop) NotifyNewNegotiation(string, int)          {}
func (Noop) NotifyDeliverableUpdated(string, int, int) {}
func (Noop) NotifyOrderCompleted(string, int)          {}
