package router

import "fmt"

// All user-facing assistant strings live here. The assistant persona speaks
// Indonesian by default; a voice change pins the session to the voice's
// language tag instead.

const defaultSystemInstruction = "Anda adalah asisten AI yang membantu dan kreatif bernama MIDIN AI. " +
	"Anda diciptakan oleh Tim Tolopani Kemenag Kota Gorontalo. " +
	"Anda harus selalu merespons dalam Bahasa Indonesia. Jadilah ramah dan komunikatif. " +
	"Anda dapat melihat dunia melalui kamera pengguna dan mendeskripsikan apa yang Anda lihat jika ditanya. " +
	"Anda juga dapat membuat dan mengedit gambar. Setelah membuat gambar, Anda dapat memberikan instruksi lanjutan untuk mengubahnya. " +
	"Jangan pernah menyebut Google atau Gemini."

func languageSystemInstruction(tag string) string {
	return "Anda adalah asisten AI yang membantu dan kreatif bernama MIDIN AI. " +
		"Anda diciptakan oleh Tim Tolopani Kemenag Kota Gorontalo. " +
		fmt.Sprintf("PENTING: Anda harus selalu merespons secara eksklusif dalam bahasa dengan tag IETF \"%s\". ", tag) +
		"Jadilah ramah dan komunikatif. " +
		"Anda dapat melihat dunia melalui kamera pengguna dan mendeskripsikan apa yang Anda lihat jika ditanya. " +
		"Anda juga dapat membuat dan mengedit gambar. Setelah membuat gambar, Anda dapat memberikan instruksi lanjutan untuk mengubahnya. " +
		"Jangan pernah menyebut Google atau Gemini."
}

const welcomeMessage = "Halo! Saya MIDIN AI. Ada yang bisa saya bantu hari ini? " +
	"Anda bisa mengetik, menggunakan suara, atau menunjukkan sesuatu dengan kamera Anda."

const (
	defaultFramePrompt = "Jelaskan gambar ini."
	editPlaceholder    = "Baik, saya akan mengedit gambar sebelumnya..."

	captionGenerated = "Tentu, ini gambarnya."
	captionProcessed = "Berikut adalah hasilnya."
	captionEdited    = "Berikut adalah gambar yang telah diedit."

	errFileAnalysis   = "Maaf, terjadi kesalahan saat menganalisis file."
	errImageProcess   = "Maaf, terjadi kesalahan saat memproses gambar."
	errGenerate       = "Maaf, saya tidak dapat membuat gambar saat ini."
	errGeneratePolicy = "Maaf, gambar tidak dapat dibuat karena permintaan Anda melanggar kebijakan konten kami. Silakan coba dengan deskripsi yang berbeda."
	errEdit           = "Maaf, terjadi kesalahan saat mengedit gambar."
	errChatPrefix     = "Maaf, terjadi kesalahan. "
	errChatFallback   = "Silakan coba lagi."

	errRecognitionPrefix = "Kesalahan pengenalan suara: "
)

func defaultFilePrompt(name string) string {
	return "Analisis file ini: " + name
}

func processingPlaceholder(text string) string {
	return fmt.Sprintf("Baik, saya akan memproses gambar Anda dengan prompt: \"%s\"...", text)
}

func generationPlaceholder(prompt string) string {
	return fmt.Sprintf("Baik, saya akan membuatkan gambar: \"%s\"...", prompt)
}

func visualQuestion(text string) string {
	return fmt.Sprintf("Dengan mempertimbangkan riwayat obrolan untuk konteks, dan berdasarkan gambar baru dari kamera ini, jawablah pertanyaan berikut: \"%s\"", text)
}

func voiceChangedNotice(displayName string) string {
	return fmt.Sprintf("[Sistem] Bahasa telah diubah ke %s.", displayName)
}
