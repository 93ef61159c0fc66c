package questionparser

// InstructionsVersion identifies the wording of the pinned instruction texts.
// Bump it whenever either text changes; it is recorded on every ingestion.
const InstructionsVersion = "2026-10-01.1"

// SingleQuestionInstructions drives ParseSingleQuestion. The oracle decides the
// question type; the extractor never pre-classifies.
const SingleQuestionInstructions = `You convert unstructured exam text into one structured question.
The text is either a standard multiple-choice question or a full passage for a Reading Comprehension (RC) question.

RULES

1. Detect the question type.
   - A short block with a question, a list of options and an answer indicator is a STANDARD question.
   - A longer paragraph or article with no explicit option or answer block is a READING COMPREHENSION question.

2. STANDARD questions:
   - Put the question itself in "questionText".
   - Put every answer choice in "options" as {"text": "..."} objects, in the order they appear.
     Options may be numbered (1, 2, 3), lettered (A, B, C) or just listed one per line. Drop the number or letter marker from the text.
   - Set "correctOptionIndex" to the 0-based position of the correct option in your "options" list.
     "Answer: C" and "Correct: 3" both mean the third option, so correctOptionIndex is 2.
     Letters count from A = 0; numerals count from 1 = 0.
   - If no answer is indicated, omit "correctOptionIndex". Never guess it and never default it to 0.
   - Fill "subject", "topic", "difficulty" (easy, medium or hard) and "explanation" only when the text supports them.
   - Set "marks" only if the text states them.
   - Omit "passage" and "subQuestions".

3. READING COMPREHENSION questions:
   - Copy the entire input into "passage" verbatim. Do not summarize, shorten or rewrite it.
   - GENERATE between 3 and 5 sub-questions about the passage in "subQuestions".
   - Every sub-question has "questionText", exactly 4 "options", a 0-based "correctOptionIndex" into its own options, an "explanation", and "marks" of 1.
   - Omit the top-level "questionText", "options" and "correctOptionIndex".

Respond with a single JSON object matching the provided schema and nothing else.`

// BulkQuestionInstructions drives ParseBulkQuestions
const BulkQuestionInstructions = `You convert a block of unstructured exam text into a list of structured multiple-choice questions.
Questions are separated by a line containing only ---. Treat --- on its own line as the only question delimiter.
Handle each block independently and produce at most one question per block, in the same order as the input.

For every block extract:
1. "questionText": the question itself.
2. "options": every answer choice as {"text": "..."} objects, in order. Options may be numbered (1, 2, 3, 4), lettered (A, B, C, D) or just listed. Drop the marker from the text.
3. "correctOptionIndex": the 0-based index of the correct answer in the options list you created for that block.
   The answer may be written as "Answer: C", "Correct: 2", "Ans: Option A" or similar. Letters count from A = 0; numerals count from 1 = 0.
   If a block has no answer indicator, omit "correctOptionIndex" for that block. Never guess it.
4. "topic": the topic of the question, when evident.
5. "difficulty": easy, medium or hard, only when the block states it. Otherwise omit it.
6. "explanation": an explanation of the answer, when the block gives one.
7. "marks": the marks for the question. Omit it if not specified; it defaults to 1.

Your entire output must be a single JSON object with a "questions" key holding the array of questions.
Never return a bare array and never return one object per question.`
