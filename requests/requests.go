package requests

// Save - write the record of an item
type Save struct {
	// verbatim note, may be empty
	Text string `json:"text"`
	// raw bytes of a newly chosen image, base64 on the wire
	Image []byte `json:"image,omitempty"`
	// file name and type of the new image, used to build the data url
	ImageName string `json:"imageName,omitempty"`
	ImageType string `json:"imageType,omitempty"`
	// data url of the image currently displayed, kept when no new image is sent
	PreviousImage string `json:"previousImage,omitempty"`
}
