package research

import (
	"fmt"
	"strings"
	"time"
)

func datedLine() string {
	return fmt.Sprintf("Today's date is %s. You will use the most up-to-date information possible.", time.Now().Format("2006-01-02"))
}

func queryInstructions() string {
	return strings.Join([]string{
		"You are an expert at generating search engine queries to better understand a question or topic.",
		"Ensure that each query is unique and relevant to the question or topic.",
		"Return exactly one query per line, with no numbering, bullets, or other special characters.",
		datedLine(),
	}, "\n")
}

func queryPrompt(question string, count int) string {
	return fmt.Sprintf("Generate %d of your best search engine queries that you can use to research how to complete the following task:\n%s", count, question)
}

func subQuestionInstructions() string {
	return strings.Join([]string{
		"You are an expert in completing tasks that require researching questions or topics.",
		"Any questions you generate must be a real sentence, not a search query! Like \"Find me this information (...)\" rather than a few keywords.",
		"Return exactly one question per line, with no numbering or bullets.",
		datedLine(),
	}, "\n")
}

func subQuestionPrompt(question string, count int) string {
	return fmt.Sprintf("Return a list of questions that you can use to research %q, ensure you pick the top %d best questions.", question, count)
}

func readingInstructions() string {
	return strings.Join([]string{
		"Ensure you read all contents on the page.",
		"Ensure you break up the question into smaller parts and search for each part.",
		"When using `page_up` or `page_down`, if you receive 'END OF PAGE REACHED' or 'TOP OF PAGE REACHED', you must stop.",
		"When using `find_text` or `find_text_next`, ensure the text you provide is not entire sentences, but rather keywords.",
	}, "\n")
}

func readingPrompt(question string) string {
	return strings.Join([]string{
		"You have one question to answer. It is paramount that you provide a correct answer.",
		"Give it all you can: I know for a fact that you have access to all the relevant tools to solve it and find the correct answer (the answer does exist).",
		"Failure or 'I cannot answer' or 'None found' will not be tolerated, success will be rewarded.",
		"Run verification steps if that's needed, you must make sure you find the correct answer!",
		"Here is the task:",
		question,
	}, "\n")
}

func summarizeInstructions() string {
	return strings.Join([]string{
		"You are an expert at contextualizing information.",
		"Your goal is to provide the most accurate information.",
		"Do not hallucinate or make up information.",
		"Do not include tool calls in your response.",
		"Do not include the question in your response.",
		"Do not include your thinking process in your response.",
		datedLine(),
	}, "\n")
}

func foldPrompt(question string, url string, answers []string, finalAnswer string) string {
	return fmt.Sprintf(`It is of utmost importance that you improve the final answer in relation to the question %q with the information provided and add references.
Use the following answers based on the %q URL to improve the final answer which should answer %s:
%s
Do not return anything but the improved final answer, the current final answer is as follows which starts with "START FINAL ANSWER" and ends with "END FINAL ANSWER":
START FINAL ANSWER
%s
END FINAL ANSWER
The answer you return should be a research paper quality answer in markdown format.`,
		question, url, question, strings.Join(answers, "\n"), finalAnswer)
}
