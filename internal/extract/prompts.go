package extract

import "fmt"

// extractionPrompt is the fixed instruction sent with every chunk or file.
// The model must return nothing but a JSON array of transaction objects.
const extractionPrompt = "You are a financial data auditor (ETL).\n" +
	"Task: extract every transaction visible in the attached bank data.\n\n" +
	"Output rules:\n" +
	"- Return ONLY a JSON array of objects, nothing else.\n" +
	"- Each object has: \"date\" (ISO \"YYYY-MM-DD\"), \"amount\" (number), \"payee_name\" (string), \"notes\" (string).\n" +
	"- Amounts: negative (-) for money out, positive (+) for money in.\n" +
	"- Skip empty rows and running-balance rows; they are not transactions.\n" +
	"- If no transactions are present, return an empty array [].\n" +
	"- Never fabricate data.\n" +
	"- Do NOT wrap the response in code fences or Markdown.\n" +
	"Output must begin with \"[\" and end with \"]\".\n"

// repairPrompt asks the model to fix its own malformed JSON. Exactly one
// repair attempt is made per chunk; the caller enforces that.
func repairPrompt(parseErr error, malformed string) string {
	return fmt.Sprintf(
		"The following text was supposed to be a JSON array of transaction objects "+
			"but failed to parse with this error:\n%v\n\n"+
			"Fix it:\n"+
			"- Close any unterminated strings.\n"+
			"- Close any unterminated arrays or objects.\n"+
			"- Normalize quoting to double quotes.\n"+
			"- Remove anything that is not part of the JSON array.\n"+
			"Return NOTHING but the corrected JSON array.\n\n"+
			"Malformed text:\n%s",
		parseErr, malformed,
	)
}
