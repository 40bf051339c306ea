package escalation

import (
	"fmt"
	"strings"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/shopspring/decimal"
)

// Operator-facing texts. The school works in Turkish.
const (
	replyAllDone     = "Tüm işlemler tamamlandı! Elinize sağlık Hocam! Defteri kapıyorum."
	reportHeader     = "Son tarama sonuçlarınızı bulabilirsiniz:"
	reportPrompt     = "Hocam lütfen ilk PAID olmayan satırın adını ve ödemesini belirtir misiniz?"
	reportFailed     = "⚠️ %d satır işlenemedi, deftere girilmedi."
	maxErrorInReply  = 200
	maxReportRecords = 40
)

func notUnderstood(message string) string {
	return "Anlaşılmadı veya işlem gerektirmiyor: " + common.Truncate(message, maxErrorInReply)
}

func unresolved(rec *model.SettlementRecord, name string, category model.Category) string {
	var missing []string
	if name == "" {
		missing = append(missing, "ad soyad")
	}
	if !category.Actionable() {
		missing = append(missing, "ödeme türü")
	}
	return fmt.Sprintf("Satır %d (%s TL) için %s belirtir misiniz?",
		rec.Row+1, rec.Amount.String(), strings.Join(missing, " ve "))
}

func resolved(name string, category model.Category, amount decimal.Decimal, remaining int) string {
	msg := fmt.Sprintf("✅ %s - %s - %s Golden'a giriş yapıldı!", name, category.Label(), amount.String())
	if remaining > 0 {
		msg += fmt.Sprintf(" Bekleyen %d satır var.", remaining)
	} else {
		msg += " " + replyAllDone
	}
	return msg
}

func settleFailed(name string, err error) string {
	return fmt.Sprintf("❌ Hata: %s için işlem yapılamadı: %s", name, common.Truncate(err.Error(), maxErrorInReply))
}

// StartedReply acknowledges a statement upload.
const StartedReply = "Dosya alındı, işlem başlatılıyor. Lütfen bekleyiniz..."

// ProcessingReply acknowledges a text reply that is handled in the background.
const ProcessingReply = "Mesajınız alındı, işleniyor..."

// FailureMessage reports a failed run or escalation to the operator.
func FailureMessage(err error) string {
	return "İşlem sırasında hata oluştu: " + common.UserMessage(err, maxErrorInReply)
}

// Report renders the end-of-run summary sent to the operator: one line per
// record, a count of failed rows, then a prompt for the first open record.
func Report(records []model.SettlementRecord, pending int) string {
	var b strings.Builder
	b.WriteString(reportHeader)
	b.WriteByte('\n')

	shown := records
	if len(shown) > maxReportRecords {
		shown = shown[:maxReportRecords]
	}
	for _, rec := range shown {
		fmt.Fprintf(&b, "%d | %s | %s | %s | %s\n",
			rec.Row+1, displayName(rec.Name), displayCategory(rec.Category), rec.Amount.String(), rec.Disposition)
	}
	if extra := len(records) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "... ve %d satır daha\n", extra)
	}

	failed := 0
	for _, rec := range records {
		if rec.Disposition == model.DispositionError {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(&b, reportFailed+"\n", failed)
	}

	if pending > 0 {
		b.WriteString(reportPrompt)
	} else {
		b.WriteString(replyAllDone)
	}
	return b.String()
}

func displayName(name string) string {
	if name == "" {
		return "BULUNAMADI"
	}
	return name
}

func displayCategory(c *model.Category) string {
	if c == nil {
		return "-"
	}
	return c.Label()
}
