// Package fallback holds the last-resort answers given when neither the
// AI service nor the knowledge base can help. Canned never returns an
// empty string.
package fallback

import "strings"

// Topic names a canned answer.
type Topic string

const (
	TopicInstall      Topic = "install"
	TopicSpec         Topic = "spec"
	TopicTroubleshoot Topic = "troubleshoot"
	TopicStandards    Topic = "standards"
	TopicGeneral      Topic = "general"
)

// topicKeywords is checked in order; the first topic with a keyword in
// the question wins.
var topicKeywords = []struct {
	topic    Topic
	keywords []string
}{
	{TopicInstall, []string{"install", "setup", "set up", "mount", "wiring", "connect"}},
	{TopicSpec, []string{"spec", "rating", "accuracy", "capacity", "range", "sampling"}},
	{TopicTroubleshoot, []string{"troubleshoot", "problem", "error", "issue", "not working", "fail", "wrong", "fix"}},
	{TopicStandards, []string{"standard", "ieee", "ashrae", "ipmvp", "ansi", "nema", "compliance", "guideline"}},
}

var responses = map[Topic]string{
	TopicInstall: "For installation help:\n\n" +
		"• De-energize and verify absence of voltage before opening the panel\n" +
		"• Install CTs with the arrow toward the load and match each CT to its voltage phase\n" +
		"• Confirm positive kW on every phase before leaving the site\n\n" +
		"The AI assistant is offline right now; the installation guide covers each step in detail.",
	TopicSpec: "For specifications:\n\n" +
		"• Voltage inputs up to 600 V AC, 3-phase\n" +
		"• Revenue-grade accuracy (ANSI C12.20 class 0.2)\n" +
		"• Interval logging from 1 to 15 minutes with harmonics to the 50th order\n\n" +
		"Full ratings are on the equipment data sheet.",
	TopicTroubleshoot: "For troubleshooting:\n\n" +
		"• Check CT orientation and phase pairing first; most bad readings start there\n" +
		"• Make sure uploaded files are CSV with a timestamp column\n" +
		"• Re-run the analysis after correcting the project details\n\n" +
		"If the problem persists, contact support with the project name and the file you uploaded.",
	TopicStandards: "Relevant standards:\n\n" +
		"• **IPMVP** Options A-D for measurement and verification\n" +
		"• **ASHRAE Guideline 14** for model calibration and uncertainty\n" +
		"• **IEEE 519** for harmonic limits\n" +
		"• **ANSI C84.1** and **NEMA MG 1** for voltage range and unbalance",
	TopicGeneral: "I can help with installation, specifications, troubleshooting, standards and power analysis. " +
		"The AI assistant is currently unavailable, so answers come from the built-in reference. " +
		"Try asking about a specific topic, for example \"IEEE 519 harmonic limits\".",
}

// Classify returns the topic for a question, or TopicGeneral.
func Classify(question string) Topic {
	q := strings.ToLower(question)
	for _, tk := range topicKeywords {
		for _, k := range tk.keywords {
			if strings.Contains(q, k) {
				return tk.topic
			}
		}
	}
	return TopicGeneral
}

// Canned returns the canned answer for question.
func Canned(question string) string {
	return responses[Classify(question)]
}

// Response returns the canned answer for a topic, falling back to the
// general answer for unknown topics.
func Response(t Topic) string {
	if r, ok := responses[t]; ok {
		return r
	}
	return responses[TopicGeneral]
}
