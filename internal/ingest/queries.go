package ingest

// The product feed is a GraphQL endpoint with a single product(tpnc) entry
// point. Two documents are used: the full one when a product is first seen,
// and a trimmed price-only one for routine re-scrapes of known products.

const fullProductQuery = `query GetProduct($tpnc: String) {
  product(tpnc: $tpnc) {
    id
    title
    brandName
    description
    defaultImageUrl
    price {
      actual
      unitPrice
      unitOfMeasure
    }
    promotions {
      id
      startDate
      endDate
      description
      attributes
      price {
        afterDiscount
      }
    }
  }
}`

const priceOnlyQuery = `query GetProductPrice($tpnc: String) {
  product(tpnc: $tpnc) {
    id
    price {
      actual
      unitPrice
      unitOfMeasure
    }
    promotions {
      id
      startDate
      endDate
      description
      attributes
      price {
        afterDiscount
      }
    }
  }
}`

// The endpoint batches operations, so requests and responses are arrays even
// for a single product.

type graphQLRequest struct {
	OperationName string            `json:"operationName"`
	Variables     requestVariables  `json:"variables"`
	Extensions    requestExtensions `json:"extensions"`
	Query         string            `json:"query"`
}

type requestVariables struct {
	TPNC string `json:"tpnc"`
}

type requestExtensions struct {
	MFEName string `json:"mfeName"`
}

type graphQLResponse struct {
	Data struct {
		Product *FeedProduct `json:"product"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FeedProduct is a product as the feed reports it. Nullable feed fields are
// pointers; the price block is absent entirely for unavailable products.
type FeedProduct struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	BrandName       *string         `json:"brandName"`
	Description     *string         `json:"description"`
	DefaultImageURL *string         `json:"defaultImageUrl"`
	Price           *FeedPrice      `json:"price"`
	Promotions      []FeedPromotion `json:"promotions"`
}

type FeedPrice struct {
	Actual        *float64 `json:"actual"`
	UnitPrice     *float64 `json:"unitPrice"`
	UnitOfMeasure *string  `json:"unitOfMeasure"`
}

type FeedPromotion struct {
	ID          string   `json:"id"`
	StartDate   *string  `json:"startDate"`
	EndDate     *string  `json:"endDate"`
	Description *string  `json:"description"`
	Attributes  []string `json:"attributes"`
	Price       *struct {
		AfterDiscount *float64 `json:"afterDiscount"`
	} `json:"price"`
}
