package rental

type CreateRentalReq struct {
	BookID int64 `json:"book_id" validate:"required,gt=0"`
	Days   int   `json:"days" validate:"required,gte=1"`
}

type ScanReq struct {
	Token string `json:"token" validate:"required,hexadecimal,len=64"`
}
