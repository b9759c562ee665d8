package modelworker

// Span is a half-open range. Offsets returned by Client are UTF-8 byte offsets.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type Entity struct {
	Label      string `json:"label"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	StartToken int    `json:"start_token"`
	EndToken   int    `json:"end_token"`
}

type ProcessInput struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

type ProcessResult struct {
	ID        string   `json:"id"`
	Tokens    []Span   `json:"tokens"`
	Sentences []Span   `json:"sentences"`
	Entities  []Entity `json:"entities"`
}

type Word struct {
	Text    string `json:"text"`
	StartMS int    `json:"start_ms"`
	EndMS   int    `json:"end_ms"`
}

type Transcription struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

// Detection is a bounding box in pixel coordinates.
type Detection struct {
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

type PDFConversion struct {
	HTML   string
	Images map[string][]byte
}

type processRequest struct {
	Documents []ProcessInput `json:"documents"`
}

type processResponse struct {
	Documents []ProcessResult `json:"documents"`
}

type transcribeRequest struct {
	Audio    string `json:"audio"`
	Filename string `json:"filename"`
	Language string `json:"language"`
}

type transcribeResponse struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Segments   []struct {
		Words []Word `json:"words"`
	} `json:"segments"`
}

type imageRequest struct {
	Image string `json:"image"`
}

type detectResponse struct {
	Detections []Detection `json:"detections"`
}

type captionResponse struct {
	Caption string `json:"caption"`
}

type embedTextRequest struct {
	Texts []string `json:"texts"`
}

type embedImageRequest struct {
	Images []string `json:"images"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type pdfRequest struct {
	PDF string `json:"pdf"`
}

type pdfResponse struct {
	HTML   string            `json:"html"`
	Images map[string]string `json:"images"`
}
