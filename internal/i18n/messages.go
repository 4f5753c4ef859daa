package i18n

// MessageID names a localised string.
type MessageID string

const (
	MsgYouSaid            MessageID = "you_said"
	MsgNoTextResponse     MessageID = "no_text_response"
	MsgVoiceFailed        MessageID = "voice_failed"
	MsgAudioUnavailable   MessageID = "audio_unavailable"
	MsgImagePrompt        MessageID = "image_prompt"
	MsgImageNoAnalysis    MessageID = "image_no_analysis"
	MsgImageFailed        MessageID = "image_failed"
	MsgImageInvalid       MessageID = "image_invalid"
	MsgImageTooLarge      MessageID = "image_too_large"
	MsgSoilInvalid        MessageID = "soil_invalid"
	MsgSoilAcidic         MessageID = "soil_acidic"
	MsgSoilAlkaline       MessageID = "soil_alkaline"
	MsgSoilPHGood         MessageID = "soil_ph_good"
	MsgSoilNitrogenLow    MessageID = "soil_nitrogen_low"
	MsgSoilPhosphorusLow  MessageID = "soil_phosphorus_low"
	MsgSoilPotassiumLow   MessageID = "soil_potassium_low"
	MsgSoilHealthy        MessageID = "soil_healthy"
	MsgSoilComplete       MessageID = "soil_complete"
	MsgVoiceSystemPrompt  MessageID = "voice_system_prompt"
	MsgAudioInvalid       MessageID = "audio_invalid"
	MsgNoSpeech           MessageID = "no_speech"
	MsgSTTUnavailable     MessageID = "stt_unavailable"
	MsgTranscribeFailed   MessageID = "transcribe_failed"
	MsgBadRequest         MessageID = "bad_request"
	MsgInternalError      MessageID = "internal_error"
	MsgServiceUnavailable MessageID = "service_unavailable"
)

var catalogue = map[MessageID]map[Language]string{
	MsgYouSaid: {
		English: "You said: %s",
		Hindi:   "आपने कहा: %s",
	},
	MsgNoTextResponse: {
		English: "No text response found.",
		Hindi:   "कोई पाठ उत्तर नहीं मिला।",
	},
	MsgVoiceFailed: {
		English: "Sorry, I couldn't provide a response. Please try again.",
		Hindi:   "क्षमा करें, मैं कोई जवाब नहीं दे सका। कृपया पुनः प्रयास करें।",
	},
	MsgAudioUnavailable: {
		English: "Invalid audio response format from API.",
		Hindi:   "API से ऑडियो उत्तर का प्रारूप अमान्य है।",
	},
	MsgImagePrompt: {
		English: "Analyze this image of a plant. What is its health status? If there is a disease, identify it and suggest a simple, low-cost treatment for a small-scale farmer. If the plant looks healthy, give a general tip for maintaining its health.",
		Hindi:   "इस पौधे की तस्वीर का विश्लेषण करें। इसकी स्वास्थ्य स्थिति क्या है? यदि कोई बीमारी है, तो उसकी पहचान करें और एक छोटे किसान के लिए एक सरल, कम लागत वाला उपचार सुझाएं। यदि पौधा स्वस्थ दिखता है, तो उसके स्वास्थ्य को बनाए रखने के लिए एक सामान्य सलाह दें।",
	},
	MsgImageNoAnalysis: {
		English: "Sorry, I couldn't analyze the image.",
		Hindi:   "क्षमा करें, मैं छवि का विश्लेषण नहीं कर सका।",
	},
	MsgImageFailed: {
		English: "Sorry, an error occurred while analyzing the image. Please try again.",
		Hindi:   "क्षमा करें, छवि का विश्लेषण करते समय एक त्रुटि हुई। कृपया पुनः प्रयास करें।",
	},
	MsgImageInvalid: {
		English: "Please upload an image file.",
		Hindi:   "कृपया एक छवि फ़ाइल अपलोड करें।",
	},
	MsgImageTooLarge: {
		English: "The image is too large.",
		Hindi:   "छवि बहुत बड़ी है।",
	},
	MsgSoilInvalid: {
		English: "Please enter valid numbers for all fields.",
		Hindi:   "कृपया सभी फ़ील्ड के लिए मान्य संख्याएं दर्ज करें।",
	},
	MsgSoilAcidic: {
		English: "Your soil is acidic. Consider adding agricultural lime to raise the pH.",
		Hindi:   "आपकी मिट्टी अम्लीय है। pH बढ़ाने के लिए कृषि चूना डालें।",
	},
	MsgSoilAlkaline: {
		English: "Your soil is alkaline. Use organic matter like compost to lower the pH.",
		Hindi:   "आपकी मिट्टी क्षारीय है। pH कम करने के लिए खाद जैसे जैविक पदार्थ का उपयोग करें।",
	},
	MsgSoilPHGood: {
		English: "Your soil pH is in a good range.",
		Hindi:   "आपकी मिट्टी का pH एक अच्छी सीमा में है।",
	},
	MsgSoilNitrogenLow: {
		English: "Nitrogen levels are low. Apply nitrogen-rich fertilizers like Urea.",
		Hindi:   "नाइट्रोजन का स्तर कम है। यूरिया जैसे नाइट्रोजन युक्त उर्वरकों का प्रयोग करें।",
	},
	MsgSoilPhosphorusLow: {
		English: "Phosphorus levels are low. Use Superphosphate to improve root development.",
		Hindi:   "फास्फोरस का स्तर कम है। जड़ के विकास को बेहतर बनाने के लिए सुपरफॉस्फेट का उपयोग करें।",
	},
	MsgSoilPotassiumLow: {
		English: "Potassium levels are low. Add Muriate of Potash to improve fruit and flower production.",
		Hindi:   "पोटेशियम का स्तर कम है। फल और फूल उत्पादन को बेहतर बनाने के लिए म्यूरेट ऑफ पोटाश डालें।",
	},
	MsgSoilHealthy: {
		English: "Your soil health appears good based on the data provided.",
		Hindi:   "प्रदान किए गए डेटा के आधार पर आपकी मिट्टी का स्वास्थ्य अच्छा प्रतीत होता है।",
	},
	MsgSoilComplete: {
		English: "Soil analysis complete!",
		Hindi:   "मिट्टी का विश्लेषण पूरा हुआ!",
	},
	MsgVoiceSystemPrompt: {
		English: "You are an agricultural advisor for small-scale farmers. Answer briefly and practically in English, in plain sentences suitable for reading aloud.",
		Hindi:   "आप छोटे किसानों के लिए एक कृषि सलाहकार हैं। हिंदी में संक्षेप में और व्यावहारिक रूप से, ज़ोर से पढ़ने योग्य सरल वाक्यों में उत्तर दें।",
	},
	MsgAudioInvalid: {
		English: "Please upload a WAV or raw PCM recording.",
		Hindi:   "कृपया WAV या PCM रिकॉर्डिंग अपलोड करें।",
	},
	MsgNoSpeech: {
		English: "Sorry, I couldn't hear a question in the recording.",
		Hindi:   "क्षमा करें, रिकॉर्डिंग में कोई प्रश्न सुनाई नहीं दिया।",
	},
	MsgSTTUnavailable: {
		English: "Speech recognition is not available on this server. Please type your question.",
		Hindi:   "इस सर्वर पर वाक् पहचान उपलब्ध नहीं है। कृपया अपना प्रश्न लिखें।",
	},
	MsgTranscribeFailed: {
		English: "Sorry, the recording could not be transcribed. Please try again.",
		Hindi:   "क्षमा करें, रिकॉर्डिंग को लिखित रूप में नहीं बदला जा सका। कृपया पुनः प्रयास करें।",
	},
	MsgBadRequest: {
		English: "The request could not be understood.",
		Hindi:   "अनुरोध समझा नहीं जा सका।",
	},
	MsgInternalError: {
		English: "Something went wrong. Please try again.",
		Hindi:   "कुछ गलत हो गया। कृपया पुनः प्रयास करें।",
	},
	MsgServiceUnavailable: {
		English: "The advisory service is temporarily unavailable.",
		Hindi:   "सलाह सेवा अस्थायी रूप से उपलब्ध नहीं है।",
	},
}

// T returns the message id in language l. Missing translations fall back to
// English; unknown ids return the id itself so gaps are visible.
func T(l Language, id MessageID) string {
	m, ok := catalogue[id]
	if !ok {
		return string(id)
	}
	if s, ok := m[l]; ok {
		return s
	}
	return m[English]
}

// IDs returns every message id in the catalogue. Used by tests to check that
// each id is translated.
func IDs() []MessageID {
	out := make([]MessageID, 0, len(catalogue))
	for id := range catalogue {
		out = append(out, id)
	}
	return out
}
