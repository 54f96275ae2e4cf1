package flow

import (
	"fmt"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Links holds the outbound URLs referenced by prompts and follow-ups.
type Links struct {
	Webinar         string `yaml:"webinar"`
	Patient         string `yaml:"patient"`
	DiabetesWebinar string `yaml:"diabetes_webinar"`
	Type1           string `yaml:"type1"`
	Other           string `yaml:"other"`
}

// Default links used when configuration leaves them blank.
const (
	DefaultWebinarLink         = "https://drruchitamehta.exlyapp.com/checkout/707b6532-7bbe-40fd-bd76-104c6dc459c4"
	DefaultPatientLink         = "https://drruchitamehta.exlyapp.com/checkout/f92410b4-99bf-4da7-8d97-965cff79f1ea"
	DefaultDiabetesWebinarLink = "https://drruchitamehta.exlyapp.com/checkout/8392be04-0a17-4c40-92a4-9dfc6f418140"
	DefaultType1Link           = "https://drruchitamehta.exlyapp.com/checkout/d3b56137-7abc-4ecf-b8b6-5af21a31f3b7"
)

// WithDefaults fills blank links. Other falls back to Type1.
func (l Links) WithDefaults() Links {
	if l.Webinar == "" {
		l.Webinar = DefaultWebinarLink
	}
	if l.Patient == "" {
		l.Patient = DefaultPatientLink
	}
	if l.DiabetesWebinar == "" {
		l.DiabetesWebinar = DefaultDiabetesWebinarLink
	}
	if l.Type1 == "" {
		l.Type1 = DefaultType1Link
	}
	if l.Other == "" {
		l.Other = l.Type1
	}
	return l
}

// Fixed prompts.
const (
	MsgEntry = "Hello 👋\n\n" +
		"Welcome to Dr. Ruchita Mehta  - Clinic & Academy\n\n" +
		"We are glad you connected 💙\n\n" +
		"Please let us know how we can support you:\n\n" +
		"1. Diabetes care\n" +
		"2. Other health concerns like thyroid, obesity\n" +
		"3. Professional certification (Diabetes Coach Program)\n\n" +
		"Reply with your choice 🙂"

	MsgChooseRetry = "Reply with 1, 2, or 3 🙂"
	MsgNeedText    = "Please send a text message to continue."

	MsgDiabetesIntro = "Thank you for reaching out 💙\n\n" +
		"We help patients manage & reverse Diabetes naturally using:\n\n" +
		"✔ Personalized Nutrition\n" +
		"✔ Lifestyle correction\n" +
		"✔ Root-cause analysis\n" +
		"✔ Medicine reduction support (if applicable)\n\n" +
		"To understand your case, please share:\n\n" +
		"• Name\n" +
		"• Age\n" +
		"• Email\n" +
		"• Current Medication (if any)\n" +
		"• Contact Number\n\n" +
		"Our team will review and guide you for the best consultation plan 🩺"

	MsgOtherIntro = "Hi 👋 Thank you for reaching out to Dr. Ruchita Mehta – Clinic & Academy 💙\n" +
		"Before we guide you further, could you please share:\n\n" +
		"• Name\n" +
		"• Age\n" +
		"• Email\n" +
		"• Current Medication (if any)\n" +
		"• Contact Number\n" +
		"• What health concern are you facing?\n" +
		"• Since how long?\n\n" +
		"This will help our team understand your case better and suggest the right support for you ✨"

	MsgStudentIntro = "Amazing  Our Certified Diabetes Specialist Program is designed for:\n\n" +
		"• Nutritionists\n" +
		"• Health Coaches\n" +
		"• Doctors\n" +
		"• Fitness Trainers\n" +
		"• Students\n\n" +
		"Would you like to attend our upcoming FREE WEBINAR\n\n" +
		"Share Your Details Below to get the details\n\n" +
		"• Name\n" +
		"• Age\n" +
		"• Email\n" +
		"• WhatsApp Number"

	MsgConfirmRetry = "Is this correct? (Yes/No)"

	MsgPatientCollectRetry = "Please send details in 5 lines:\nName\nAge\nEmail\nCurrent Medication\nContact Number"
	MsgPatientResend       = "Please re-send your 5 details in new lines."
	MsgPatientType         = "Which type of Diabetes?\n\n(Type 1 / Type 2 / Prediabetes / Gestational)"
	MsgPatientYears        = "Since how many years?"
	MsgPatientValues       = "Latest Fasting & PP sugar values (if available):"
	MsgPatientGoal         = "What is your main goal right now?\n" +
		"A) Reduce medicines\n" +
		"B) Better sugar control\n" +
		"C) Weight loss\n" +
		"D) Complication prevention\n" +
		"E) All of the above"

	MsgType1Intro = "Hi 👋\n\n" +
		"Thank you for reaching out to Dr Ruchita Mehta 🙂\n" +
		"I personally understand Type 1 closely, as I have been managing Type 1 cases since 2012 and have helped many clients achieve more stable sugars and better energy levels with the right nutrition and lifestyle support.\n\n" +
		"Managing sugars daily can feel overwhelming sometimes, but with the right guidance, stability is possible 🙂\n\n" +
		"To guide you properly, I need a few quick details 👇\n\n" +
		"1️⃣ Since how many years diagnosed?\n" +
		"2️⃣ Latest Fasting & PP sugar values\n" +
		"3️⃣ Do you experience frequent sugar highs or lows?\n" +
		"4️⃣ Any symptoms like fatigue, weakness, weight changes or mood swings?"
	MsgType1AnswersRetry = "Please send these 4 details in new lines:\n" +
		"1) Since how many years diagnosed\n" +
		"2) Latest Fasting & PP sugar values\n" +
		"3) Frequent highs/lows\n" +
		"4) Symptoms"
	MsgType1Step = "Thank you for sharing 🙏\n" +
		"Based on your details, your sugars are currently not very stable, which is common in Type 1 when nutrition timing and lifestyle are not optimized.\n\n" +
		"My approach focuses on:\n" +
		"✔️ Reducing sugar spikes\n" +
		"✔️ Improving insulin response\n" +
		"✔️ Preventing complications\n" +
		"✔️ Improving daily energy\n\n" +
		"Would you like to know how we work step by step? 🙂\nType (Yes or No)"
	MsgType1StepRetry = "Type Yes or No"
	MsgType1Focus     = "Before I share details, I just want to understand your goal 🙂\n\n" +
		"What is your main focus right now?\n" +
		"A️⃣ Better sugar control\n" +
		"B️⃣ Reduce fluctuations\n" +
		"C️⃣ Improve energy\n" +
		"D️⃣ Prevent complications\n" +
		"E️⃣ All of the above"

	MsgOtherCollectRetry = "Please send details in 7 lines:\nName\nAge\nEmail\nCurrent Medication\nContact Number\nConcern\nSince how long"

	MsgStudentCollectRetry = "Please send details in 4 lines:\nName\nAge\nEmail\nWhatsApp Number"
	MsgStudentResend       = "Please re-send your 4 details in new lines."
	MsgStudentBest         = "Great  Which best describes you?\n\n" +
		"A) Beginner – No diabetes coaching experience\n" +
		"B) Some experience but not confident\n" +
		"C) Already seeing diabetes clients\n" +
		"D) Just exploring"
	MsgStudentGoal = "What is your main goal from this training?\n\n" +
		"A) Become Diabetes Educator\n" +
		"B) Start own practice\n" +
		"C) Increase income\n" +
		"D) Help more patients\n" +
		"E) All of the above"
	MsgStudentWebinar = "Amazing  I am hosting a Free Live Webinar where I will reveal:\n\n" +
		"The 5 Biggest Gaps – Why you are not getting best results in diabetes cases\n" +
		"The 3D Method I personally use for sugar control\n" +
		"Why sugar is not dropping even after diet & medicines\n\n" +
		"How to start getting consistent results in your diabetes clients\n" +
		"Would you like to attend this webinar?\n\n" +
		"Reply YES to get details."
	MsgStudentWebinarRetry = "Reply YES to get details."
)

func confirmPatient(d map[models.DataKey]string) string {
	return fmt.Sprintf("Name: %s\nAge: %s\nEmail: %s\nCurrent Medication: %s\nContact Number : %s\nIs this correct? (Yes/No)",
		d[models.DataKeyName], d[models.DataKeyAge], d[models.DataKeyEmail],
		d[models.DataKeyCurrentMedication], d[models.DataKeyContactNumber])
}

func confirmStudent(d map[models.DataKey]string) string {
	return fmt.Sprintf("Name: %s\nAge: %s\nEmail: %s\nWhatsApp Number: %s\nIs this correct? (Yes/No)",
		d[models.DataKeyName], d[models.DataKeyAge], d[models.DataKeyEmail], d[models.DataKeyContactNumber])
}

func (l Links) patientClosing() string {
	return "Based on your details, I’ll personally review your case and suggest the best plan 👩‍⚕️\n\n" +
		"Choose an option below 👇\n\n" +
		"🔹 Book 1:1 Call with Dr. Ruchita Mehta\n" + l.Patient + "\n\n" +
		"OR\n\n" +
		"🔹 Join FREE Diabetes Management Webinar\n" + l.DiabetesWebinar
}

func (l Links) type1Closing() string {
	return "Based on your goal, I recommend a personalized consultation where we deeply analyse your case and create a structured plan.\n\n" +
		"You can book your appointment here 👇\n\n" +
		"🔗" + l.Type1 + "\n\n" +
		"Let us know once booked, we’ll guide you with the next steps 💙"
}

func (l Links) otherClosing() string {
	return "Thank you for sharing 🙏\n\n" +
		"For personalised guidance and a detailed plan, we recommend booking a 1:1 consultation with Dr. Ruchita Mehta 👩‍⚕️✨\n\n" +
		"In the session, you’ll receive:\n" +
		"✔️ Detailed health assessment\n" +
		"✔️ Diet & lifestyle strategy\n" +
		"✔️ Root-cause based plan\n" +
		"✔️ Report analysis\n\n" +
		"You can book your appointment here 👇\n🔗 " + l.Other + "\n\n" +
		"Let us know once booked, we’ll guide you with the next steps 💙"
}

func (l Links) webinarClosing() string {
	return "Here's your webinar link:\n" + l.Webinar
}

// FollowUpMessages returns the three reminder texts for a completed flow.
func (l Links) FollowUpMessages(flow models.FlowType, fields map[models.DataKey]string) []string {
	const final = "Final follow-up: we have your data, we will get back to you soon."
	if flow == models.FlowTypeStudent {
		return []string{
			"Reminder: webinar details are here " + l.Webinar,
			"Checking in on your interest. Reply if you need guidance.",
			final,
		}
	}
	consult := l.Patient
	if IsType1(fields[models.DataKeyDiabetesType]) {
		consult = l.Type1
	}
	return []string{
		"Follow-up: consultation link " + consult,
		"Webinar link: " + l.DiabetesWebinar,
		final,
	}
}
