package main

import "fmt"

const (
	MsgNoDetections = "No tumor was detected based on the current confidence threshold."

	MsgConsultProfessional = "Please consult with a medical professional for a proper diagnosis."

	Disclaimer = "This tool is for educational purposes only and is not a substitute for professional medical diagnosis."
)

func detectionMessage(count int) string {
	if count == 0 {
		return MsgNoDetections
	}
	return fmt.Sprintf("Found %d detection(s).", count)
}
