package export

import (
	"fmt"

	"shopify-orders-exporter/internal/domain"
)

// column binds a CSV header name to its value extractor. One row is emitted
// per order line item, so extractors see both the order and the item.
type column struct {
	name  string
	value func(o domain.Order, it map[string]interface{}) string
}

// columns is the fixed export schema. The names, order, and field sources
// match the merchant-facing order export format this service has always
// produced; quirks are intentional and load-bearing for downstream
// consumers:
//   - "Billing Street" and "Billing Address1" both read address1 (same for
//     shipping)
//   - "Employee" and "Source" both read source_name
//   - "Payment ID" reads the card BIN, "Payment Reference" the card number
//   - only the first discount code, shipping line, and line-item property
//     and the first five tax lines are represented
var columns = []column{
	{"Name", func(o domain.Order, it map[string]interface{}) string { return str(o, "name") }},
	{"Email", func(o domain.Order, it map[string]interface{}) string { return str(o, "email") }},
	{"Financial Status", func(o domain.Order, it map[string]interface{}) string { return str(o, "financial_status") }},
	{"Paid at", func(o domain.Order, it map[string]interface{}) string { return str(o, "processed_at") }},
	{"Fulfillment Status", func(o domain.Order, it map[string]interface{}) string { return str(o, "fulfillment_status") }},
	{"Fulfilled at", func(o domain.Order, it map[string]interface{}) string { return str(it, "fulfilled_at") }},
	{"Property Name", func(o domain.Order, it map[string]interface{}) string { return str(at(list(it, "properties"), 0), "name") }},
	{"Property Value", func(o domain.Order, it map[string]interface{}) string { return str(at(list(it, "properties"), 0), "value") }},
	{"Accepts Marketing", func(o domain.Order, it map[string]interface{}) string { return str(o, "buyer_accepts_marketing") }},
	{"Currency", func(o domain.Order, it map[string]interface{}) string { return str(o, "currency") }},
	{"Subtotal", func(o domain.Order, it map[string]interface{}) string { return str(o, "subtotal_price") }},
	{"Shipping", func(o domain.Order, it map[string]interface{}) string {
		return str(sub(sub(o, "total_shipping_price_set"), "shop_money"), "amount")
	}},
	{"Taxes", func(o domain.Order, it map[string]interface{}) string { return str(o, "total_tax") }},
	{"Total", func(o domain.Order, it map[string]interface{}) string { return str(o, "total_price") }},
	{"Discount Code", func(o domain.Order, it map[string]interface{}) string { return str(at(list(o, "discount_codes"), 0), "code") }},
	{"Discount Amount", func(o domain.Order, it map[string]interface{}) string { return str(at(list(o, "discount_codes"), 0), "amount") }},
	{"Shipping Method", func(o domain.Order, it map[string]interface{}) string { return str(at(list(o, "shipping_lines"), 0), "title") }},
	{"Created at", func(o domain.Order, it map[string]interface{}) string { return str(o, "created_at") }},
	{"Lineitem quantity", func(o domain.Order, it map[string]interface{}) string { return str(it, "quantity") }},
	{"Lineitem name", func(o domain.Order, it map[string]interface{}) string { return str(it, "name") }},
	{"Lineitem price", func(o domain.Order, it map[string]interface{}) string { return str(it, "price") }},
	{"Lineitem compare at price", func(o domain.Order, it map[string]interface{}) string { return str(it, "compare_at_price") }},
	{"Lineitem sku", func(o domain.Order, it map[string]interface{}) string { return str(it, "sku") }},
	{"Lineitem requires shipping", func(o domain.Order, it map[string]interface{}) string { return str(it, "requires_shipping") }},
	{"Lineitem taxable", func(o domain.Order, it map[string]interface{}) string { return str(it, "taxable") }},
	{"Lineitem fulfillment status", func(o domain.Order, it map[string]interface{}) string { return str(it, "fulfillment_status") }},
	{"Billing Name", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "billing_address"), "name") }},
	{"Billing Street", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "billing_address"), "address1") }},
	{"Billing Address1", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "billing_address"), "address1") }},
	{"Billing Address2", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "billing_address"), "address2") }},
	{"Billing Company", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "billing_address"), "company") }},
	{"Billing City", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "billing_address"), "city") }},
	{"Billing Zip", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "billing_address"), "zip") }},
	{"Billing Province", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "billing_address"), "province") }},
	{"Billing Country", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "billing_address"), "country") }},
	{"Billing Phone", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "billing_address"), "phone") }},
	{"Shipping Name", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "shipping_address"), "name") }},
	{"Shipping Street", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "shipping_address"), "address1") }},
	{"Shipping Address1", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "shipping_address"), "address1") }},
	{"Shipping Address2", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "shipping_address"), "address2") }},
	{"Shipping Company", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "shipping_address"), "company") }},
	{"Shipping City", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "shipping_address"), "city") }},
	{"Shipping Zip", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "shipping_address"), "zip") }},
	{"Shipping Province", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "shipping_address"), "province") }},
	{"Shipping Country", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "shipping_address"), "country") }},
	{"Shipping Phone", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "shipping_address"), "phone") }},
	{"Notes", func(o domain.Order, it map[string]interface{}) string { return str(o, "note") }},
	{"Note Attributes", func(o domain.Order, it map[string]interface{}) string { return jsonText(field(o, "note_attributes")) }},
	{"Cancelled at", func(o domain.Order, it map[string]interface{}) string { return str(o, "cancelled_at") }},
	{"Payment Method", func(o domain.Order, it map[string]interface{}) string { return text(idx(list(o, "payment_gateway_names"), 0)) }},
	{"Payment Reference", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "payment_details"), "credit_card_number") }},
	{"Refunded Amount", func(o domain.Order, it map[string]interface{}) string {
		return str(at(list(at(list(o, "refunds"), 0), "transactions"), 0), "amount")
	}},
	{"Vendor", func(o domain.Order, it map[string]interface{}) string { return str(it, "vendor") }},
	{"Outstanding Balance", func(o domain.Order, it map[string]interface{}) string { return str(o, "outstanding_balance") }},
	{"Employee", func(o domain.Order, it map[string]interface{}) string { return str(o, "source_name") }},
	{"Location", func(o domain.Order, it map[string]interface{}) string { return str(o, "location_id") }},
	{"Device ID", func(o domain.Order, it map[string]interface{}) string { return str(o, "device_id") }},
	{"Id", func(o domain.Order, it map[string]interface{}) string { return str(o, "id") }},
	{"Tags", func(o domain.Order, it map[string]interface{}) string { return str(o, "tags") }},
	{"Risk Level", func(o domain.Order, it map[string]interface{}) string { return str(o, "risk_level") }},
	{"Source", func(o domain.Order, it map[string]interface{}) string { return str(o, "source_name") }},
	{"Lineitem discount", func(o domain.Order, it map[string]interface{}) string { return str(it, "total_discount") }},
	taxColumn(1, "title"), taxColumn(1, "price"),
	taxColumn(2, "title"), taxColumn(2, "price"),
	taxColumn(3, "title"), taxColumn(3, "price"),
	taxColumn(4, "title"), taxColumn(4, "price"),
	taxColumn(5, "title"), taxColumn(5, "price"),
	{"Phone", func(o domain.Order, it map[string]interface{}) string { return str(o, "phone") }},
	{"Receipt Number", func(o domain.Order, it map[string]interface{}) string { return str(o, "receipt_number") }},
	{"Duties", func(o domain.Order, it map[string]interface{}) string {
		return str(sub(sub(o, "total_duties_set"), "shop_money"), "amount")
	}},
	{"Billing Province Name", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "billing_address"), "province") }},
	{"Shipping Province Name", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "shipping_address"), "province") }},
	{"Payment ID", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "payment_details"), "credit_card_bin") }},
	{"Payment Terms Name", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "payment_terms"), "name") }},
	{"Next Payment Due At", func(o domain.Order, it map[string]interface{}) string { return str(sub(o, "payment_terms"), "next_payment_due_at") }},
	{"Payment References", func(o domain.Order, it map[string]interface{}) string {
		return jsonText(field(sub(o, "payment_terms"), "payment_schedules"))
	}},
}

// taxColumn builds the "Tax N Name"/"Tax N Value" pair for 1-based tax line
// position n. Tax lines past the fifth are dropped.
func taxColumn(n int, key string) column {
	name := "Name"
	if key == "price" {
		name = "Value"
	}
	header := fmt.Sprintf("Tax %d %s", n, name)
	return column{header, func(o domain.Order, it map[string]interface{}) string {
		return str(at(list(it, "tax_lines"), n-1), key)
	}}
}
