package guardrail

import "strings"

// Localized user-facing strings for the three supported languages. Unknown
// language codes fall back to French, the service's primary audience.

var rejectionMessages = map[string]string{
	"fr": "Désolé, je ne peux répondre qu'aux questions concernant les démarches administratives françaises. Pouvez-vous reformuler votre question ?",
	"en": "Sorry, I can only answer questions about French administrative procedures. Could you rephrase your question?",
	"vi": "Xin lỗi, tôi chỉ có thể trả lời các câu hỏi về thủ tục hành chính của Pháp. Bạn có thể diễn đạt lại câu hỏi không?",
}

var injectionMessages = map[string]string{
	"fr": "Votre message n'a pas pu être traité. Merci de poser une question sur les démarches administratives.",
	"en": "Your message could not be processed. Please ask a question about administrative procedures.",
	"vi": "Tin nhắn của bạn không thể được xử lý. Vui lòng đặt câu hỏi về thủ tục hành chính.",
}

var ungroundedMessages = map[string]string{
	"fr": "Je n'ai pas trouvé de source fiable pour répondre précisément. Pouvez-vous préciser votre situation (statut, type de titre, département) ?",
	"en": "I could not find a reliable source to answer precisely. Could you give more detail about your situation (status, permit type, department)?",
	"vi": "Tôi chưa tìm được nguồn đáng tin cậy để trả lời chính xác. Bạn có thể cho biết thêm về tình huống của mình không (tình trạng, loại giấy tờ, tỉnh)?",
}

var disclaimers = map[string]string{
	"fr": "\n\n*Note : Ces informations sont données à titre indicatif. Pour toute décision officielle, veuillez consulter le site service-public.fr ou contacter l'administration compétente.*",
	"en": "\n\n*Note: This information is for guidance only. For official decisions, please consult service-public.fr or contact the relevant authorities.*",
	"vi": "\n\n*Lưu ý: Thông tin này chỉ mang tính chất tham khảo. Để có quyết định chính thức, vui lòng truy cập service-public.fr hoặc liên hệ cơ quan có thẩm quyền.*",
}

func normalizeLang(language string) string {
	lang := strings.ToLower(language)
	if len(lang) > 2 {
		lang = lang[:2]
	}
	switch lang {
	case "fr", "en", "vi":
		return lang
	}
	return "fr"
}

// RejectionMessage is the localized out-of-scope rejection.
func RejectionMessage(language string) string {
	return rejectionMessages[normalizeLang(language)]
}

// InjectionMessage is the localized response to a blocked injection attempt.
func InjectionMessage(language string) string {
	return injectionMessages[normalizeLang(language)]
}

// UngroundedMessage is the localized clarification fallback when a generated
// answer is not supported by the retrieved sources.
func UngroundedMessage(language string) string {
	return ungroundedMessages[normalizeLang(language)]
}

// AddDisclaimer appends the mandatory legal disclaimer to an answer.
func AddDisclaimer(answer, language string) string {
	return answer + disclaimers[normalizeLang(language)]
}

// MessageFor resolves the user-visible text for a verdict. Approved verdicts
// have no canned message.
func MessageFor(v Verdict, language string) string {
	switch v.Reason {
	case ReasonOutOfScope:
		return RejectionMessage(language)
	case ReasonInjection:
		return InjectionMessage(language)
	case ReasonUngrounded:
		return UngroundedMessage(language)
	}
	return ""
}
